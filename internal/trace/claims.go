package trace

import (
	"bytes"
	"cmp"
	"slices"
	"strings"

	"fairtrace/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EvidenceGroup is the evidence one actor supplied for a claim.
type EvidenceGroup struct {
	AddedBy     uuid.UUID      `json:"added_by"`
	AddedByName string         `json:"added_by_name"`
	Data        []EvidenceItem `json:"data"`
}

type EvidenceItem struct {
	CriterionID uuid.UUID `json:"criterion_id"`
	FieldID     uuid.UUID `json:"field_id"`
	Values      []string  `json:"values"`
}

// TransactionData locates a claim along the chain.
type TransactionData struct {
	// Actors whose upstream batches carry the claim.
	Actors []uuid.UUID `json:"actors"`
	// Quantity of the traced batch covered by the verification.
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit"`
}

// ClaimRecord is the display form of a claim on the traced batch.
type ClaimRecord struct {
	ClaimID                uuid.UUID          `json:"claim_id"`
	Name                   string             `json:"name"`
	Description            string             `json:"description"`
	Image                  string             `json:"image,omitempty"`
	Status                 model.ClaimStatus  `json:"status"`
	AttachedFrom           model.AttachedFrom `json:"attached_from"`
	Removable              bool               `json:"removable"`
	VerificationPercentage float64            `json:"verification_percentage"`
	Evidences              []EvidenceGroup    `json:"evidences"`
	TransactionData        TransactionData    `json:"transaction_data"`
}

// ClaimInput feeds ClaimRecords.
type ClaimInput struct {
	Batch model.Batch
	// Claims attached to the traced batch.
	Claims []model.AttachedBatchClaim
	// Upstream holds the claims of every batch consumed along the chain,
	// BatchOwners maps those batches to their owners.
	Upstream    []model.AttachedBatchClaim
	BatchOwners map[uuid.UUID]uuid.UUID
	Actors      map[uuid.UUID]*Actor
}

// ClaimRecords renders the traced batch's claims. Rejected claims are not
// shown.
func ClaimRecords(in ClaimInput) []ClaimRecord {
	carriers := make(map[uuid.UUID]map[uuid.UUID]struct{})
	for _, ac := range in.Upstream {
		if ac.Status == model.ClaimRejected {
			continue
		}
		owner, ok := in.BatchOwners[ac.BatchID]
		if !ok {
			continue
		}
		if carriers[ac.ClaimID] == nil {
			carriers[ac.ClaimID] = make(map[uuid.UUID]struct{})
		}
		carriers[ac.ClaimID][owner] = struct{}{}
	}

	out := make([]ClaimRecord, 0, len(in.Claims))
	for _, ac := range in.Claims {
		if ac.Status == model.ClaimRejected || ac.Claim == nil {
			continue
		}
		rec := ClaimRecord{
			ClaimID:                ac.ClaimID,
			Name:                   ac.Claim.Name,
			Description:            ac.Claim.Description,
			Image:                  ac.Claim.Image,
			Status:                 ac.Status,
			AttachedFrom:           ac.AttachedFrom,
			Removable:              ac.Removable,
			VerificationPercentage: round2(decimal.NewFromFloat(ac.VerificationPercentage)),
			Evidences:              groupEvidence(UnionEvidence(ac.Responses), in.Actors),
			TransactionData: TransactionData{
				Actors: []uuid.UUID{},
				Quantity: in.Batch.InitialQuantity.
					Mul(decimal.NewFromFloat(ac.VerificationPercentage)).
					Div(hundred).Round(4),
				Unit: in.Batch.Unit,
			},
		}
		for id := range carriers[ac.ClaimID] {
			rec.TransactionData.Actors = append(rec.TransactionData.Actors, id)
		}
		slices.SortFunc(rec.TransactionData.Actors, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b ClaimRecord) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), bytes.Compare(a.ClaimID[:], b.ClaimID[:]))
	})
	return out
}

func groupEvidence(evidence []Evidence, actors map[uuid.UUID]*Actor) []EvidenceGroup {
	groups := []EvidenceGroup{}
	for _, e := range evidence {
		if n := len(groups); n == 0 || groups[n-1].AddedBy != e.AddedBy {
			name := ""
			if a, ok := actors[e.AddedBy]; ok {
				name, _, _, _ = displayNode(a.Node)
			}
			groups = append(groups, EvidenceGroup{AddedBy: e.AddedBy, AddedByName: name})
		}
		g := &groups[len(groups)-1]
		g.Data = append(g.Data, EvidenceItem{CriterionID: e.CriterionID, FieldID: e.FieldID, Values: e.Values})
	}
	return groups
}
