package model

import "time"

// RelationshipEdge is a directed (subject, predicate, object) triple.
// The triple itself is the primary key: the same edge cannot be stored
// twice (spec.md §3). A reverse lookup is a plain index on
// (object, predicate), not a separate set of rows — no cycle needs an
// owning reference to be representable (spec.md §9).
type RelationshipEdge struct {
	Subject   string    `gorm:"column:subject;primaryKey"`
	Predicate string    `gorm:"column:predicate;primaryKey;index:idx_relationships_reverse,priority:2"`
	Object    string    `gorm:"column:object;primaryKey;index:idx_relationships_reverse,priority:1"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (RelationshipEdge) TableName() string { return "relationships" }
