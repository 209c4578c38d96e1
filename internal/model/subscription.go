package model

import "time"

// SubscriptionMode selects the delivery transport for a subscription.
// Only webhook delivery is implemented by the dispatcher; websocket
// mode is recorded but its transport is out of scope (spec.md §1).
type SubscriptionMode string

const (
	SubscriptionModeWebhook   SubscriptionMode = "webhook"
	SubscriptionModeWebsocket SubscriptionMode = "websocket"
)

// Subscription matches events by glob-style pattern and, when active,
// receives a signed webhook delivery for each match (spec.md §4.8).
type Subscription struct {
	ID        string           `gorm:"column:id;primaryKey"`
	Pattern   string           `gorm:"column:pattern;index:idx_subscriptions_pattern"`
	Mode      SubscriptionMode `gorm:"column:mode"`
	Endpoint  string           `gorm:"column:endpoint"`
	Secret    *string          `gorm:"column:secret"`
	Active    bool             `gorm:"column:active;index:idx_subscriptions_active"`
	CreatedAt time.Time        `gorm:"column:created_at"`
}

func (Subscription) TableName() string { return "subscriptions" }
