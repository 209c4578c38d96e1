// Package integrations implements the integration dispatcher (spec.md
// C9): a fixed built-in hook table merged with tenant-configured hooks,
// routing matching events to named downstream service bindings modeled
// the way the teacher builds its outbound API clients (sendgrid.Client,
// twilio.Client): Config, ConfigFromEnv, NewBinding(log, name, cfg), retry
// via platform/httpx.
package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nounforge/entitykernel/internal/platform/ctxutil"
	"github.com/nounforge/entitykernel/internal/platform/envutil"
	"github.com/nounforge/entitykernel/internal/platform/httpx"
	"github.com/nounforge/entitykernel/internal/platform/logger"
)

// Binding is a thin outbound HTTP client for one named downstream
// service (model.ServiceName). It knows only how to send a
// method+path+payload request; it carries no domain semantics.
type Binding interface {
	Send(ctx context.Context, method, path string, payload any, headers map[string]string) (statusCode int, err error)
}

// Config configures one service binding. A zero-value Config with an
// empty BaseURL and Token is never valid; ConfigFromEnv returns exactly
// that when the corresponding environment variables are unset, and
// NewBinding then refuses to build a binding from it.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// ConfigFromEnv reads "{SERVICE}_BASE_URL", "{SERVICE}_TOKEN",
// "{SERVICE}_TIMEOUT_SECONDS", and "{SERVICE}_MAX_RETRIES" for the
// given service name (e.g. "PAYMENTS" yields PAYMENTS_BASE_URL, ...).
func ConfigFromEnv(service string) Config {
	service = strings.ToUpper(strings.TrimSpace(service))
	timeoutSec := envutil.Int(service+"_TIMEOUT_SECONDS", 30)
	maxRetries := envutil.Int(service+"_MAX_RETRIES", 4)
	return Config{
		BaseURL:    strings.TrimSpace(os.Getenv(service + "_BASE_URL")),
		Token:      strings.TrimSpace(os.Getenv(service + "_TOKEN")),
		Timeout:    time.Duration(timeoutSec) * time.Second,
		MaxRetries: maxRetries,
	}
}

// NewBinding builds a Binding from cfg. It refuses to build one when
// BaseURL is empty, since that is what ConfigFromEnv returns when the
// service isn't configured for this tenant kernel -- the dispatcher
// relies on this refusal to decide a binding is "not available"
// (spec.md §4.9).
func NewBinding(log *logger.Logger, name string, cfg Config) (Binding, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing %s_BASE_URL", strings.ToUpper(name))
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 4
	}

	return &binding{
		log:        log.With("client", name+"Binding"),
		name:       name,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type binding struct {
	log        *logger.Logger
	name       string
	cfg        Config
	httpClient *http.Client
}

func (b *binding) Send(ctx context.Context, method, path string, payload any, headers map[string]string) (int, error) {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		status, resp, err := b.sendOnce(ctx, method, path, payload, headers)
		if err == nil {
			return status, nil
		}

		if !httpx.IsRetryableError(err) || attempt == b.cfg.MaxRetries {
			return status, err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		b.log.Warn("integration binding request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", b.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return 0, fmt.Errorf("unreachable retry loop")
}

type httpError struct {
	statusCode int
	body       string
}

func (e *httpError) Error() string {
	msg := strings.TrimSpace(e.body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("%s: http %d: %s", "integration binding", e.statusCode, msg)
}

func (e *httpError) HTTPStatusCode() int { return e.statusCode }

func (b *binding) sendOnce(ctx context.Context, method, path string, payload any, headers map[string]string) (int, *http.Response, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if payload != nil && method != http.MethodGet && method != http.MethodHead {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return 0, nil, err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, b.cfg.BaseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.Token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, resp, &httpError{statusCode: resp.StatusCode, body: string(raw)}
	}
	return resp.StatusCode, resp, nil
}

// Registry holds the outbound service bindings configured for one
// tenant kernel, keyed by model.ServiceName. Services with no BaseURL
// configured are simply absent from the map: the dispatcher treats a
// missing entry as "not available" without any special-casing
// (spec.md §4.9, SPEC_FULL.md's C9 binding note).
type Registry map[string]Binding

// RegistryFromEnv builds bindings for every named service whose env
// vars are present, skipping (not erroring on) services that aren't
// configured.
func RegistryFromEnv(log *logger.Logger, services []string) Registry {
	reg := Registry{}
	for _, name := range services {
		b, err := NewBinding(log, name, ConfigFromEnv(name))
		if err != nil {
			continue
		}
		reg[strings.ToUpper(name)] = b
	}
	return reg
}
