package schema

import (
	"regexp"

	"github.com/nounforge/entitykernel/internal/model"
)

// Definition is what the (out-of-scope) noun-definition parser hands
// the registry: already-structured fields plus the verb names a noun
// wants beyond the default create/update/delete trio. The mini-
// language itself — turning "name: string!" into a FieldDescriptor —
// is the caller's job (spec.md §1 Explicitly out of scope).
type Definition struct {
	Singular      string
	Plural        string
	Slug          string
	Fields        map[string]model.FieldDescriptor
	CustomVerbs   []string
	DisabledVerbs []string
}

var pascalCase = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

// IsPascalCase reports whether name matches the noun naming rule
// spec.md §4.3 requires ("Rejects names not matching PascalCase").
func IsPascalCase(name string) bool {
	return pascalCase.MatchString(name)
}

var defaultVerbs = []string{"create", "update", "delete"}
