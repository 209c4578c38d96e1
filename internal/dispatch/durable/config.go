// Package durable is the optional Temporal-backed alternative to the
// claim-based outbox.Worker poll loop: a single long-lived workflow
// drains the same outbox via the same Handler interface, giving
// implementers targeting stricter delivery semantics durable retries
// and visibility into Temporal instead of an in-process ticker
// (spec.md §9's design note; SPEC_FULL.md DOMAIN STACK). It is grounded
// on the teacher's internal/temporalx package.
package durable

import (
	"os"
	"strings"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string
}

func LoadConfig() Config {
	return Config{
		Address:   strings.TrimSpace(os.Getenv("TEMPORAL_ADDRESS")),
		Namespace: stringsOr(strings.TrimSpace(os.Getenv("TEMPORAL_NAMESPACE")), "entitykernel"),
		TaskQueue: stringsOr(strings.TrimSpace(os.Getenv("TEMPORAL_TASK_QUEUE")), "entitykernel-outbox"),
	}
}

func stringsOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
