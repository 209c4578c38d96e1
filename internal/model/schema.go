package model

import "time"

// FieldKind enumerates the field descriptor kinds spec.md §3 names.
type FieldKind string

const (
	FieldKindScalar       FieldKind = "scalar"
	FieldKindEnum         FieldKind = "enum"
	FieldKindRelationship FieldKind = "relationship"
	FieldKindVerb         FieldKind = "custom_verb"
	FieldKindDisabled     FieldKind = "disabled"
)

// FieldDescriptor describes one field of a noun schema: its kind and
// the set of modifiers a noun-definition can attach to it.
type FieldDescriptor struct {
	Kind       FieldKind `json:"kind" validate:"required,oneof=scalar enum relationship custom_verb disabled"`
	Required   bool      `json:"required,omitempty"`
	Optional   bool      `json:"optional,omitempty"`
	Indexed    bool      `json:"indexed,omitempty"`
	Unique     bool      `json:"unique,omitempty"`
	Array      bool      `json:"array,omitempty"`
	Default    any       `json:"default,omitempty"`
	EnumValues []string  `json:"enumValues,omitempty"`
	// RelationshipNoun names the target noun when Kind == relationship.
	RelationshipNoun string `json:"relationshipNoun,omitempty"`
}

// NounSchema is the domain-facing, fully parsed noun definition: field
// descriptors, the conjugation triple for every verb the noun exposes,
// and the set of verbs explicitly disabled for it.
type NounSchema struct {
	Name      string                     `json:"name"`
	Singular  string                     `json:"singular"`
	Plural    string                     `json:"plural"`
	Slug      string                     `json:"slug"`
	Fields    map[string]FieldDescriptor `json:"fields"`
	Verbs     map[string]Conjugation     `json:"verbs"`
	Disabled  map[string]bool            `json:"disabled"`
	CreatedAt time.Time                  `json:"createdAt"`
}

// IsVerbDisabled reports whether verb is in the noun's disabled set.
func (n *NounSchema) IsVerbDisabled(verb string) bool {
	if n == nil || n.Disabled == nil {
		return false
	}
	return n.Disabled[verb]
}

// NounRow is the GORM-facing row for nouns(name, schema, created_at).
// Everything but the primary key and timestamp is serialized as one
// JSON blob, matching spec.md §6's single-column persisted schema.
type NounRow struct {
	Name      string    `gorm:"column:name;primaryKey"`
	Schema    []byte    `gorm:"column:schema"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (NounRow) TableName() string { return "nouns" }

func (n *NounSchema) ToRow() (*NounRow, error) {
	b, err := marshalSchema(n)
	if err != nil {
		return nil, err
	}
	return &NounRow{Name: n.Name, Schema: b, CreatedAt: n.CreatedAt}, nil
}

func NounFromRow(row *NounRow) (*NounSchema, error) {
	if row == nil {
		return nil, nil
	}
	n, err := unmarshalSchema(row.Schema)
	if err != nil {
		return nil, err
	}
	n.Name = row.Name
	n.CreatedAt = row.CreatedAt
	return n, nil
}
