package model

import (
	"time"

	"gorm.io/datatypes"
)

// EntityRow is the GORM-facing row for entities(id, type, data,
// version, created_at, updated_at, deleted_at). The payload travels as
// a `datatypes.JSON` column so entitystore's list filters can push
// down into the query with `datatypes.JSONQuery`; callers work with
// the friendlier Entity struct and convert at the storage boundary.
type EntityRow struct {
	ID        string         `gorm:"column:id;primaryKey"`
	Type      string         `gorm:"column:type;index:idx_entities_type;index:idx_entities_type_deleted,priority:1"`
	Data      datatypes.JSON `gorm:"column:data"`
	Version   int            `gorm:"column:version"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
	DeletedAt *time.Time     `gorm:"column:deleted_at;index:idx_entities_type_deleted,priority:2"`
	Context   string         `gorm:"column:context"`
}

func (EntityRow) TableName() string { return "entities" }

// Entity is the domain-facing representation every package outside
// `storage` works with: reserved meta-fields live as typed struct
// fields, never inside Data, so a caller-supplied patch can never
// clobber id/type/version/timestamps (spec.md §4.4's reserved-field
// stripping operates against this shape).
type Entity struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Data      Document   `json:"data"`
	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	Context   string     `json:"context"`
}

// IsDeleted reports whether the entity has been soft-deleted (I3/I4).
func (e *Entity) IsDeleted() bool { return e != nil && e.DeletedAt != nil }

// Document reproduces the full payload document, reattaching the
// reserved id/type fields so I5 ("the payload always carries the same
// id/type as the row") holds for anything callers read back.
func (e *Entity) Document() Document {
	if e == nil {
		return nil
	}
	doc := e.Data.Clone()
	if doc == nil {
		doc = Document{}
	}
	doc["id"] = e.ID
	doc["type"] = e.Type
	return doc
}

// ToRow converts the domain struct to its persisted shape.
func (e *Entity) ToRow() (*EntityRow, error) {
	j, err := MarshalDocument(e.Data)
	if err != nil {
		return nil, err
	}
	return &EntityRow{
		ID:        e.ID,
		Type:      e.Type,
		Data:      datatypes.JSON(j),
		Version:   e.Version,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		DeletedAt: e.DeletedAt,
		Context:   e.Context,
	}, nil
}

// EntityFromRow rebuilds the domain struct from a persisted row.
func EntityFromRow(row *EntityRow) (*Entity, error) {
	if row == nil {
		return nil, nil
	}
	doc, err := UnmarshalDocument([]byte(row.Data))
	if err != nil {
		return nil, err
	}
	return &Entity{
		ID:        row.ID,
		Type:      row.Type,
		Data:      doc,
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		DeletedAt: row.DeletedAt,
		Context:   row.Context,
	}, nil
}
