package model

import "encoding/json"

// nounSchemaWire is the JSON shape persisted in nouns.schema; kept
// separate from NounSchema so adding wire-only fields later doesn't
// disturb the domain struct's json tags used elsewhere (HTTP bodies).
type nounSchemaWire struct {
	Singular string                     `json:"singular"`
	Plural   string                     `json:"plural"`
	Slug     string                     `json:"slug"`
	Fields   map[string]FieldDescriptor `json:"fields"`
	Verbs    map[string]Conjugation     `json:"verbs"`
	Disabled map[string]bool            `json:"disabled"`
}

func marshalSchema(n *NounSchema) ([]byte, error) {
	return json.Marshal(nounSchemaWire{
		Singular: n.Singular,
		Plural:   n.Plural,
		Slug:     n.Slug,
		Fields:   n.Fields,
		Verbs:    n.Verbs,
		Disabled: n.Disabled,
	})
}

func unmarshalSchema(b []byte) (*NounSchema, error) {
	var w nounSchemaWire
	if len(b) > 0 {
		if err := json.Unmarshal(b, &w); err != nil {
			return nil, err
		}
	}
	return &NounSchema{
		Singular: w.Singular,
		Plural:   w.Plural,
		Slug:     w.Slug,
		Fields:   w.Fields,
		Verbs:    w.Verbs,
		Disabled: w.Disabled,
	}, nil
}
