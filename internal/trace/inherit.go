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

// Contribution is one source batch feeding a destination batch.
type Contribution struct {
	BatchID   uuid.UUID
	ProductID uuid.UUID
	Quantity  decimal.Decimal
	// Claims attached to the source batch, claim definitions preloaded.
	Claims []model.AttachedBatchClaim
}

// InheritedClaim is a claim to attach to the destination batch.
type InheritedClaim struct {
	Claim                  model.Claim
	Status                 model.ClaimStatus
	VerificationPercentage float64
	Removable              bool
	Evidence               []Evidence
}

// Attachment converts the result into a row for batchID.
func (c InheritedClaim) Attachment(batchID uuid.UUID) model.AttachedBatchClaim {
	return model.AttachedBatchClaim{
		BatchID:                batchID,
		ClaimID:                c.Claim.ID,
		Status:                 c.Status,
		VerificationPercentage: c.VerificationPercentage,
		AttachedFrom:           model.AttachedInherited,
		Removable:              c.Removable,
		Responses:              Responses(c.Evidence),
	}
}

// InheritClaims decides which claims of the contributing batches carry over
// to the destination and at what verification percentage.
//
// Candidates are the claims approved on every contributor, plus proportional
// claims approved on any contributor, plus claims inheritable by all found on
// any contributor. Eligibility then follows each claim's inheritable setting;
// product-bound claims require a single product on both sides. pinned holds
// claims referenced by stock requests, which are never removable; a pin on any
// contributor's attachment carries over the same way.
//
// Unverified (pending) quantity counts towards the percentage only when no
// contributor has the claim approved.
func InheritClaims(contribs []Contribution, destinationProducts []uuid.UUID, pinned map[uuid.UUID]struct{}) ([]InheritedClaim, []*ClaimInconsistency) {
	if len(contribs) == 0 {
		return nil, nil
	}

	defs := make(map[uuid.UUID]model.Claim)
	perBatch := make([]map[uuid.UUID]*model.AttachedBatchClaim, len(contribs))
	for i := range contribs {
		perBatch[i] = make(map[uuid.UUID]*model.AttachedBatchClaim)
		for j := range contribs[i].Claims {
			ac := &contribs[i].Claims[j]
			perBatch[i][ac.ClaimID] = ac
			if ac.Claim != nil {
				if _, ok := defs[ac.ClaimID]; !ok {
					defs[ac.ClaimID] = *ac.Claim
				}
			}
		}
	}

	candidates := make(map[uuid.UUID]struct{})
	for id := range defs {
		common := true
		for i := range contribs {
			ac, ok := perBatch[i][id]
			if !ok || ac.Status != model.ClaimApproved {
				common = false
			}
			if ok && ac.Status == model.ClaimApproved && defs[id].Proportional {
				candidates[id] = struct{}{}
			}
		}
		if common || defs[id].Inheritable == model.InheritAll {
			candidates[id] = struct{}{}
		}
	}

	single := singleProduct(contribs, destinationProducts)
	quantities := make([]decimal.Decimal, len(contribs))
	for i := range contribs {
		quantities[i] = contribs[i].Quantity
	}

	var out []InheritedClaim
	var issues []*ClaimInconsistency
	for id := range candidates {
		def := defs[id]
		switch def.Inheritable {
		case model.InheritAll:
		case model.InheritProduct:
			if !single {
				continue
			}
		default:
			continue
		}

		pcts := make([]float64, len(contribs))
		pendingPcts := make([]float64, len(contribs))
		var approved, rejected []uuid.UUID
		var evidence [][]model.FieldResponse
		pending, kept := false, false
		for i := range contribs {
			ac, ok := perBatch[i][id]
			if !ok {
				continue
			}
			switch ac.Status {
			case model.ClaimApproved, model.ClaimPartial:
				approved = append(approved, contribs[i].BatchID)
				pcts[i] = ac.VerificationPercentage
			case model.ClaimRejected:
				rejected = append(rejected, contribs[i].BatchID)
			default:
				pending = true
				pendingPcts[i] = ac.VerificationPercentage
			}
			if def.Removable && !ac.Removable {
				kept = true
			}
			evidence = append(evidence, ac.Responses)
		}

		var status model.ClaimStatus
		switch {
		case len(approved) > 0 && len(rejected) > 0:
			status = model.ClaimPartial
			issues = append(issues, &ClaimInconsistency{ClaimID: id, Approved: approved, Rejected: rejected})
		case len(approved) > 0:
			status = model.ClaimApproved
		case pending:
			status = model.ClaimPending
			pcts = pendingPcts
		default:
			// only rejections: nothing to inherit
			continue
		}

		_, isPinned := pinned[id]
		out = append(out, InheritedClaim{
			Claim:                  def,
			Status:                 status,
			VerificationPercentage: WeightedPercentage(quantities, pcts),
			Removable:              def.Removable && !isPinned && !kept,
			Evidence:               UnionEvidence(evidence...),
		})
	}

	slices.SortFunc(out, func(a, b InheritedClaim) int {
		return cmp.Or(strings.Compare(a.Claim.Name, b.Claim.Name), bytes.Compare(a.Claim.ID[:], b.Claim.ID[:]))
	})
	slices.SortFunc(issues, func(a, b *ClaimInconsistency) int { return bytes.Compare(a.ClaimID[:], b.ClaimID[:]) })
	return out, issues
}

func singleProduct(contribs []Contribution, destination []uuid.UUID) bool {
	src := make(map[uuid.UUID]struct{})
	for _, c := range contribs {
		src[c.ProductID] = struct{}{}
	}
	dst := make(map[uuid.UUID]struct{})
	for _, id := range destination {
		dst[id] = struct{}{}
	}
	if len(src) != 1 || len(dst) != 1 {
		return false
	}
	for id := range src {
		_, ok := dst[id]
		return ok
	}
	return false
}
