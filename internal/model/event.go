package model

import (
	"time"

	"gorm.io/datatypes"
)

// EventRow is the GORM-facing row for the events table (spec.md §6).
type EventRow struct {
	ID                  string         `gorm:"column:id;primaryKey"`
	Type                string         `gorm:"column:type"`
	EntityType          string         `gorm:"column:entity_type;index:idx_events_entity;index:idx_events_entity_seq,priority:1"`
	EntityID            string         `gorm:"column:entity_id;index:idx_events_entity;index:idx_events_entity_seq,priority:2"`
	Verb                string         `gorm:"column:verb;index:idx_events_verb"`
	ConjugationAction   string         `gorm:"column:conjugation_action"`
	ConjugationActivity string         `gorm:"column:conjugation_activity"`
	ConjugationEvent    string         `gorm:"column:conjugation_event"`
	Data                datatypes.JSON `gorm:"column:data"`
	BeforeState         datatypes.JSON `gorm:"column:before_state"`
	AfterState          datatypes.JSON `gorm:"column:after_state"`
	Sequence            int            `gorm:"column:sequence;index:idx_events_entity_seq,priority:3"`
	Timestamp           time.Time      `gorm:"column:timestamp;index:idx_events_timestamp"`
}

func (EventRow) TableName() string { return "events" }

// Conjugation mirrors verbs.Conjugation without importing the verbs
// package from model, keeping the dependency direction shallow
// (verbs -> model would be a cycle since verbs has no model needs, but
// model stays dependency-free by design).
type Conjugation struct {
	Action      string `json:"action"`
	Activity    string `json:"activity"`
	Event       string `json:"event"`
	ReverseBy   string `json:"reverseBy"`
	ReverseAt   string `json:"reverseAt"`
	ThirdPerson string `json:"thirdPerson,omitempty"`
}

// Event is the domain-facing representation of one committed mutation.
type Event struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	EntityType  string      `json:"entityType"`
	EntityID    string      `json:"entityId"`
	Verb        string      `json:"verb"`
	Conjugation Conjugation `json:"conjugation"`
	Data        Document    `json:"data,omitempty"`
	Before      Document    `json:"before,omitempty"`
	After       Document    `json:"after,omitempty"`
	Sequence    int         `json:"sequence"`
	Timestamp   time.Time   `json:"timestamp"`
}

func (e *Event) ToRow() (*EventRow, error) {
	data, err := MarshalDocument(e.Data)
	if err != nil {
		return nil, err
	}
	before, err := MarshalDocument(e.Before)
	if err != nil {
		return nil, err
	}
	after, err := MarshalDocument(e.After)
	if err != nil {
		return nil, err
	}
	return &EventRow{
		ID:                  e.ID,
		Type:                e.Type,
		EntityType:          e.EntityType,
		EntityID:            e.EntityID,
		Verb:                e.Verb,
		ConjugationAction:   e.Conjugation.Action,
		ConjugationActivity: e.Conjugation.Activity,
		ConjugationEvent:    e.Conjugation.Event,
		Data:                datatypes.JSON(data),
		BeforeState:         datatypes.JSON(before),
		AfterState:          datatypes.JSON(after),
		Sequence:            e.Sequence,
		Timestamp:           e.Timestamp,
	}, nil
}

func EventFromRow(row *EventRow) (*Event, error) {
	if row == nil {
		return nil, nil
	}
	data, err := UnmarshalDocument([]byte(row.Data))
	if err != nil {
		return nil, err
	}
	before, err := UnmarshalDocument([]byte(row.BeforeState))
	if err != nil {
		return nil, err
	}
	after, err := UnmarshalDocument([]byte(row.AfterState))
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:         row.ID,
		Type:       row.Type,
		EntityType: row.EntityType,
		EntityID:   row.EntityID,
		Verb:       row.Verb,
		Conjugation: Conjugation{
			Action:    row.ConjugationAction,
			Activity:  row.ConjugationActivity,
			Event:     row.ConjugationEvent,
			ReverseBy: row.ConjugationEvent + "By",
			ReverseAt: row.ConjugationEvent + "At",
		},
		Data:      data,
		Before:    before,
		After:     after,
		Sequence:  row.Sequence,
		Timestamp: row.Timestamp,
	}, nil
}
