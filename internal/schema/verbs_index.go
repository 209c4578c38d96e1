package schema

import (
	"context"
	"strings"

	"github.com/nounforge/entitykernel/internal/model"
)

// VerbInfo is one flattened, deduplicated entry from ListVerbs: a base
// verb's conjugation plus every noun that exposes it.
type VerbInfo struct {
	Conjugation model.Conjugation `json:"conjugation"`
	Nouns       []string          `json:"nouns"`
}

// ListVerbs flattens every registered noun's verb table into
// verb -> (conjugation, [noun names]), deduplicated by base verb name
// (spec.md §4.3).
func (r *Registry) ListVerbs(ctx context.Context) (map[string]VerbInfo, error) {
	nouns, err := r.ListNouns(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]VerbInfo{}
	for _, n := range nouns {
		for verb, conj := range n.Verbs {
			info, ok := out[verb]
			if !ok {
				info = VerbInfo{Conjugation: conj}
			}
			info.Nouns = append(info.Nouns, n.Name)
			out[verb] = info
		}
	}
	return out, nil
}

// VerbMatch is one hit from FindVerbByAnyForm.
type VerbMatch struct {
	Noun        string            `json:"noun"`
	Conjugation model.Conjugation `json:"conjugation"`
	MatchedForm string            `json:"matchedForm"`
}

// FindVerbByAnyForm searches every registered noun's verb table by
// action, activity, or event form (spec.md §4.3) and returns every
// match, including which form matched.
func (r *Registry) FindVerbByAnyForm(ctx context.Context, form string) ([]VerbMatch, error) {
	form = strings.ToLower(strings.TrimSpace(form))
	nouns, err := r.ListNouns(ctx)
	if err != nil {
		return nil, err
	}
	var matches []VerbMatch
	for _, n := range nouns {
		for _, conj := range n.Verbs {
			switch form {
			case conj.Action:
				matches = append(matches, VerbMatch{Noun: n.Name, Conjugation: conj, MatchedForm: "action"})
			case conj.Activity:
				matches = append(matches, VerbMatch{Noun: n.Name, Conjugation: conj, MatchedForm: "activity"})
			case conj.Event:
				matches = append(matches, VerbMatch{Noun: n.Name, Conjugation: conj, MatchedForm: "event"})
			}
		}
	}
	return matches, nil
}
