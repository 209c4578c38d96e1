package model

import "time"

// ServiceName enumerates the downstream services an integration hook
// can route to (spec.md §3).
type ServiceName string

const (
	ServicePayments     ServiceName = "PAYMENTS"
	ServiceRepo         ServiceName = "REPO"
	ServiceIntegrations ServiceName = "INTEGRATIONS"
	ServiceOAuth        ServiceName = "OAUTH"
	ServiceEvents       ServiceName = "EVENTS"
)

// IntegrationHook routes matching events to a named downstream
// service. Both EntityType and Verb support "*" as a wildcard. The
// fixed built-in table (spec.md §4.9) is represented by IntegrationHook
// values with ids of the form "builtin:{SERVICE}:{method}" and is
// never persisted to integration_hooks — it is always present,
// read-only, and merged in at match time.
type IntegrationHook struct {
	ID         string      `gorm:"column:id;primaryKey"`
	EntityType string      `gorm:"column:entity_type;index:idx_integration_hooks_match,priority:1"`
	Verb       string      `gorm:"column:verb;index:idx_integration_hooks_match,priority:2"`
	Service    ServiceName `gorm:"column:service"`
	Method     string      `gorm:"column:method"`
	Config     []byte      `gorm:"column:config"`
	Active     bool        `gorm:"column:active;index:idx_integration_hooks_match,priority:3"`
	CreatedAt  time.Time   `gorm:"column:created_at"`
	// Builtin marks a fixed, non-tenant-editable hook. Never set on a
	// persisted row; only on the in-memory built-in table merged at
	// match time.
	Builtin bool `gorm:"-"`
}

func (IntegrationHook) TableName() string { return "integration_hooks" }

// Matches reports whether the hook's entityType/verb pattern matches a
// concrete (entityType, verb) pair, honoring "*" wildcards on either
// side, and requires the hook to be active.
func (h IntegrationHook) Matches(entityType, verb string) bool {
	if !h.Active {
		return false
	}
	if h.EntityType != "*" && h.EntityType != entityType {
		return false
	}
	if h.Verb != "*" && h.Verb != verb {
		return false
	}
	return true
}
