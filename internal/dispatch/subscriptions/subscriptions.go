// Package subscriptions implements the webhook subscription
// dispatcher (spec.md C8): pattern matching against newly appended
// events and fire-and-forget HMAC-signed delivery to each match.
package subscriptions

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nounforge/entitykernel/internal/ids"
	"github.com/nounforge/entitykernel/internal/kernelerr"
	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/concurrency"
	"github.com/nounforge/entitykernel/internal/platform/envutil"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"gorm.io/gorm"
)

const (
	headerEventType = "X-Entitykernel-Event"
	headerDelivery  = "X-Entitykernel-Delivery-Id"
	headerSignature = "X-Entitykernel-Signature"
)

// Dispatcher fans an appended event out to every active, matching
// subscription for one tenant.
type Dispatcher struct {
	db      *gorm.DB
	log     *logger.Logger
	client  *http.Client
	limiter *concurrency.Limiter
}

func New(db *gorm.DB, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		db:      db,
		log:     log,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: concurrency.NewLimiter(envutil.Int("DISPATCH_MAX_CONCURRENCY", 16)),
	}
}

// Dispatch evaluates every active subscription's pattern against
// ev.Type and posts to every match concurrently, fire-and-forget: the
// caller does not wait for this to return meaningfully slower than a
// context switch, and delivery errors never propagate (spec.md §4.8).
func (d *Dispatcher) Dispatch(ctx context.Context, ev *model.Event) {
	var subs []model.Subscription
	if err := d.db.WithContext(ctx).Where("active = ?", true).Find(&subs).Error; err != nil {
		d.log.With("entityId", ev.EntityID).Warn("subscription lookup failed", "error", err)
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		d.log.Warn("subscription dispatch: failed to marshal event", "error", err)
		return
	}

	for _, sub := range subs {
		if !Matches(sub.Pattern, ev.Type) {
			continue
		}
		sub := sub
		d.limiter.Go(ctx, func() { d.deliver(sub, ev.Type, body) })
	}
}

// DispatchSync delivers ev to every matching active subscription and
// waits for every delivery, returning the first error encountered (if
// any). It exists for the durable outbox drain path (SPEC_FULL.md's
// claim-based background drain), where a caller needs to know whether
// delivery succeeded in order to retry; the default Dispatch path
// above never needs this because it never reports back to a caller.
func (d *Dispatcher) DispatchSync(ctx context.Context, ev *model.Event) error {
	var subs []model.Subscription
	if err := d.db.WithContext(ctx).Where("active = ?", true).Find(&subs).Error; err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	var firstErr error
	for _, sub := range subs {
		if !Matches(sub.Pattern, ev.Type) {
			continue
		}
		if err := d.deliverSync(sub, ev.Type, body); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Matches implements spec.md §4.8's pattern grammar: "*" matches
// everything; otherwise a pattern is "{entity}.{verb}" where either
// side may be "*"; exact equality succeeds when neither side is a
// wildcard.
func Matches(pattern, eventType string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "*" {
		return true
	}
	pParts := strings.SplitN(pattern, ".", 2)
	eParts := strings.SplitN(eventType, ".", 2)
	if len(pParts) != 2 || len(eParts) != 2 {
		return pattern == eventType
	}
	entityMatch := pParts[0] == "*" || pParts[0] == eParts[0]
	verbMatch := pParts[1] == "*" || pParts[1] == eParts[1]
	return entityMatch && verbMatch
}

func (d *Dispatcher) deliver(sub model.Subscription, eventType string, body []byte) {
	if err := d.deliverSync(sub, eventType, body); err != nil {
		d.log.With("subscriptionId", sub.ID).Warn("subscription dispatch failed", "error", err)
	}
}

func (d *Dispatcher) deliverSync(sub model.Subscription, eventType string, body []byte) error {
	deliveryID := ids.New("dlv", 12)
	req, err := http.NewRequest(http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEventType, eventType)
	req.Header.Set(headerDelivery, deliveryID)
	if sub.Secret != nil && *sub.Secret != "" {
		req.Header.Set(headerSignature, sign(*sub.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("subscription %s endpoint returned status %d", sub.ID, resp.StatusCode)
	}
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Register validates and persists a new subscription.
func Register(ctx context.Context, db *gorm.DB, pattern, mode, endpoint string, secret *string) (*model.Subscription, error) {
	mode = strings.TrimSpace(mode)
	if mode != string(model.SubscriptionModeWebhook) && mode != string(model.SubscriptionModeWebsocket) {
		return nil, kernelerr.New(kernelerr.CodeBadInput, "subscriptions.register", "mode must be webhook or websocket", nil)
	}
	if strings.TrimSpace(pattern) == "" || strings.TrimSpace(endpoint) == "" {
		return nil, kernelerr.New(kernelerr.CodeBadInput, "subscriptions.register", "pattern and endpoint are required", nil)
	}
	sub := &model.Subscription{
		ID:        ids.Subscription(),
		Pattern:   pattern,
		Mode:      model.SubscriptionMode(mode),
		Endpoint:  endpoint,
		Secret:    secret,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, kernelerr.Wrap(kernelerr.CodeInternal, "subscriptions.register", err)
	}
	return sub, nil
}
