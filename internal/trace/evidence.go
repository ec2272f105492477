package trace

import (
	"bytes"
	"cmp"
	"slices"

	"fairtrace/internal/model"

	"github.com/google/uuid"
)

// Evidence is the set of responses one actor gave for one criterion field.
type Evidence struct {
	CriterionID uuid.UUID `json:"criterion_id"`
	FieldID     uuid.UUID `json:"field_id"`
	AddedBy     uuid.UUID `json:"added_by"`
	Values      []string  `json:"values"`
}

type evidenceKey struct {
	criterion, field, addedBy uuid.UUID
}

// UnionEvidence merges responses per (criterion, field, added_by). Identical
// values are kept once, in first-seen order. Responses from different actors
// stay separate.
func UnionEvidence(groups ...[]model.FieldResponse) []Evidence {
	index := make(map[evidenceKey]int)
	var out []Evidence
	for _, responses := range groups {
		for _, r := range responses {
			k := evidenceKey{r.CriterionID, r.FieldID, r.AddedBy}
			i, ok := index[k]
			if !ok {
				i = len(out)
				index[k] = i
				out = append(out, Evidence{CriterionID: r.CriterionID, FieldID: r.FieldID, AddedBy: r.AddedBy})
			}
			if !slices.Contains(out[i].Values, r.Response) {
				out[i].Values = append(out[i].Values, r.Response)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b Evidence) int {
		return cmp.Or(
			bytes.Compare(a.AddedBy[:], b.AddedBy[:]),
			bytes.Compare(a.CriterionID[:], b.CriterionID[:]),
			bytes.Compare(a.FieldID[:], b.FieldID[:]),
		)
	})
	return out
}

// Responses flattens evidence back into field response rows.
func Responses(evidence []Evidence) []model.FieldResponse {
	var out []model.FieldResponse
	for _, e := range evidence {
		for _, v := range e.Values {
			out = append(out, model.FieldResponse{
				CriterionID: e.CriterionID,
				FieldID:     e.FieldID,
				AddedBy:     e.AddedBy,
				Response:    v,
			})
		}
	}
	return out
}
