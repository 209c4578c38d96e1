package cdc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nounforge/entitykernel/internal/platform/logger"
)

// Bus fans a "new events committed for tenant X" notification across
// process instances so every instance's Streamer can wake immediately
// rather than waiting out its poll interval. Grounded directly on the
// teacher's internal/realtime/bus.Bus (Redis pub/sub), narrowed to a
// single tenant-id payload since the CDC stream needs a wake-up signal,
// not message delivery -- Poll remains the source of truth for content.
type Bus interface {
	Notify(ctx context.Context, tenantID string) error
	StartForwarder(ctx context.Context, onNotify func(tenantID string)) error
	Close() error
}

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedisBus connects to REDIS_ADDR and uses REDIS_CDC_CHANNEL
// (default "entitykernel-cdc") for both Notify's publishes and
// StartForwarder's subscription. Absence of REDIS_ADDR is reported as an
// error so callers can fall back to the interval-only Streamer, the
// same "missing env means not available" shape used throughout
// internal/dispatch/integrations.
func NewRedisBus(log *logger.Logger) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel := strings.TrimSpace(os.Getenv("REDIS_CDC_CHANNEL"))
	if channel == "" {
		channel = "entitykernel-cdc"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:     log.With("service", "CDCRedisBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

type busMessage struct {
	TenantID string `json:"tenantId"`
}

func (b *redisBus) Notify(ctx context.Context, tenantID string) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("cdc redis bus not initialized")
	}
	raw, err := json.Marshal(busMessage{TenantID: tenantID})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisBus) StartForwarder(ctx context.Context, onNotify func(tenantID string)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("cdc redis bus not initialized")
	}
	if onNotify == nil {
		return fmt.Errorf("onNotify callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var msg busMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.log.Warn("bad cdc bus payload", "error", err)
					continue
				}
				onNotify(msg.TenantID)
			}
		}
	}()

	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
