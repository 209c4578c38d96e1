// Package ids mints the opaque short identifiers every kernel record
// carries: entities, events, subscriptions, integration hooks, and
// dispatch-log entries.
package ids

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync/atomic"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	entitySuffixLen = 10
	longSuffixLen   = 12
)

// New draws n characters from the 62-character alphabet and returns
// "prefix_XXXX...". It never fails: on the vanishingly unlikely event
// crypto/rand returns an error, it falls back to a less uniform but
// still non-repeating source rather than panicking, since minting is
// specified as failure-free (spec.md §4.1).
func New(prefix string, n int) string {
	suffix := draw(n)
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return suffix
	}
	return prefix + "_" + suffix
}

func draw(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fallback(n)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}

// fallback uses a counter-seeded LCG so id minting truly never fails,
// even if the system entropy source is unavailable. Collision odds are
// worse than crypto/rand but this path is not expected to run.
var fallbackCounter atomic.Uint64

func fallback(n int) string {
	seed := 0x9e3779b97f4a7c15 ^ (fallbackCounter.Add(1) * 0xbf58476d1ce4e5b9)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		out[i] = alphabet[(seed>>33)%uint64(len(alphabet))]
	}
	return string(out)
}

// Entity mints an entity id of the shape "{type-lowercased}_{shortid}".
func Entity(nounName string) string {
	return New(strings.ToLower(strings.TrimSpace(nounName)), entitySuffixLen)
}

// Event mints an event id, "evt_{shortid}".
func Event() string { return New("evt", longSuffixLen) }

// Subscription mints a subscription id, "sub_{shortid}".
func Subscription() string { return New("sub", longSuffixLen) }

// IntegrationHook mints a tenant-defined integration hook id, "ihook_{shortid}".
func IntegrationHook() string { return New("ihook", longSuffixLen) }

// Dispatch mints a dispatch-log entry id, "disp_{shortid}".
func Dispatch() string { return New("disp", longSuffixLen) }

// BuiltinHook formats the fixed id of a built-in (non-deletable)
// integration hook: "builtin:{SERVICE}:{method}".
func BuiltinHook(service, method string) string {
	return fmt.Sprintf("builtin:%s:%s", strings.ToUpper(strings.TrimSpace(service)), strings.TrimSpace(method))
}
