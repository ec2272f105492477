package trace_test

import (
	"testing"

	"fairtrace/internal/model"
	"fairtrace/internal/trace"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimRecords(t *testing.T) {
	s := newProcessingChain()
	actors := trace.BuildActors(s.input(s.b3))

	organic := &model.Claim{ID: uuid.New(), Name: "Organic", Description: "no synthetic inputs"}
	rejected := &model.Claim{ID: uuid.New(), Name: "Rejected"}
	crit, field := uuid.New(), uuid.New()

	own := attached(s.b3.ID, organic, model.ClaimApproved, 60,
		model.FieldResponse{CriterionID: crit, FieldID: field, AddedBy: s.f.ID, Response: "cert.pdf"},
		model.FieldResponse{CriterionID: crit, FieldID: field, AddedBy: s.f.ID, Response: "cert.pdf"},
	)
	own.AttachedFrom = model.AttachedInherited

	records := trace.ClaimRecords(trace.ClaimInput{
		Batch:  s.b3,
		Claims: []model.AttachedBatchClaim{own, attached(s.b3.ID, rejected, model.ClaimRejected, 0)},
		Upstream: []model.AttachedBatchClaim{
			attached(s.b1.ID, organic, model.ClaimApproved, 100),
			attached(s.b2.ID, organic, model.ClaimApproved, 60),
		},
		BatchOwners: map[uuid.UUID]uuid.UUID{s.b1.ID: s.f.ID, s.b2.ID: s.p.ID},
		Actors:      actors,
	})

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, organic.ID, rec.ClaimID)
	assert.Equal(t, 60.0, rec.VerificationPercentage)
	assert.Equal(t, "60", rec.TransactionData.Quantity.String())
	assert.ElementsMatch(t, []uuid.UUID{s.f.ID, s.p.ID}, rec.TransactionData.Actors)
	require.Len(t, rec.Evidences, 1)
	assert.Equal(t, "Fatima", rec.Evidences[0].AddedByName)
	assert.Equal(t, []string{"cert.pdf"}, rec.Evidences[0].Data[0].Values)
}
