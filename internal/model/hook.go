package model

import "time"

// HookPhase is when a verb hook would fire relative to the mutation,
// if hook code were ever executed (it never is, per spec.md §9).
type HookPhase string

const (
	HookPhaseBefore HookPhase = "before"
	HookPhaseAfter  HookPhase = "after"
)

// HookRegistration is stored-only: Code is persisted verbatim and
// never interpreted. Any reimplementation must preserve that security
// posture rather than add an interpreter.
type HookRegistration struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Noun      string    `gorm:"column:noun;index:idx_hooks_noun_verb_phase,priority:1"`
	Verb      string    `gorm:"column:verb;index:idx_hooks_noun_verb_phase,priority:2"`
	Phase     HookPhase `gorm:"column:phase;index:idx_hooks_noun_verb_phase,priority:3"`
	Code      string    `gorm:"column:code"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (HookRegistration) TableName() string { return "hooks" }
