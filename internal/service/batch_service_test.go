package service_test

import (
	"sync"
	"testing"

	"fairtrace/internal/dto"
	"fairtrace/internal/model"
	"fairtrace/internal/service"
	"fairtrace/internal/trace"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalTransactionMovesQuantity(t *testing.T) {
	e := newEnv(t)
	f := e.node("Fatima", model.NodeFarmer, "Farmer")
	p := e.node("Pedro Mill", model.NodeCompany, "Processor")
	b := e.harvest(f, e.product("cherry"), 100)

	resp := e.send(f, p, day0, src(b, 40))
	assert.Equal(t, string(model.TransactionExternal), resp.Kind)
	assert.True(t, resp.SourceQuantity.Equal(decimal.NewFromInt(40)))
	require.Len(t, resp.ResultBatches, 1)

	out := e.batch(resultID(t, resp, 0))
	assert.Equal(t, p.NodeID, out.NodeID)
	assert.True(t, out.InitialQuantity.Equal(decimal.NewFromInt(40)))
	require.NotNil(t, out.SourceTransactionID)
	assert.Equal(t, resp.ID, out.SourceTransactionID.String())

	assert.True(t, e.batch(b).CurrentQuantity.Equal(decimal.NewFromInt(60)))
}

func TestExternalTransactionSendSeparately(t *testing.T) {
	e := newEnv(t)
	f := e.node("Fatima", model.NodeFarmer, "Farmer")
	p := e.node("Pedro Mill", model.NodeCompany, "Processor")
	cherry := e.product("cherry")
	a := e.harvest(f, cherry, 10)
	b := e.harvest(f, cherry, 20)

	resp, err := e.batches.CreateExternalTransaction(e.ctx, f, dto.ExternalTransactionRequest{
		DestinationNodeID: p.NodeID.String(),
		SourceBatches:     []dto.SourceBatchRequest{src(a, 10), src(b, 20)},
		SendSeparately:    true,
	})
	require.NoError(t, err)
	require.Len(t, resp.ResultBatches, 2)
	assert.True(t, resp.DestinationQuantity.Equal(decimal.NewFromInt(30)))
}

func TestExternalTransactionRejectsSelf(t *testing.T) {
	e := newEnv(t)
	f := e.node("Fatima", model.NodeFarmer, "Farmer")
	b := e.harvest(f, e.product("cherry"), 10)

	_, err := e.batches.CreateExternalTransaction(e.ctx, f, dto.ExternalTransactionRequest{
		DestinationNodeID: f.NodeID.String(),
		SourceBatches:     []dto.SourceBatchRequest{src(b, 10)},
	})
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestTransactionOverdrawWritesNothing(t *testing.T) {
	e := newEnv(t)
	f := e.node("Fatima", model.NodeFarmer, "Farmer")
	p := e.node("Pedro Mill", model.NodeCompany, "Processor")
	b := e.harvest(f, e.product("cherry"), 100)

	_, err := e.batches.CreateExternalTransaction(e.ctx, f, dto.ExternalTransactionRequest{
		DestinationNodeID: p.NodeID.String(),
		SourceBatches:     []dto.SourceBatchRequest{src(b, 101)},
	})
	assert.ErrorIs(t, err, service.ErrInsufficientQuantity)
	assert.True(t, e.batch(b).CurrentQuantity.Equal(decimal.NewFromInt(100)))

	var count int64
	require.NoError(t, e.db.Model(&model.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestConsumeOverdraw(t *testing.T) {
	e := newEnv(t)
	f := e.node("Fatima", model.NodeFarmer, "Farmer")
	b := e.harvest(f, e.product("cherry"), 100)

	err := e.batches.Consume(e.ctx, f, b, decimal.NewFromInt(101))
	assert.ErrorIs(t, err, service.ErrInsufficientQuantity)
	assert.True(t, e.batch(b).CurrentQuantity.Equal(decimal.NewFromInt(100)))

	require.NoError(t, e.batches.Consume(e.ctx, f, b, decimal.NewFromInt(100)))
	assert.True(t, e.batch(b).CurrentQuantity.IsZero())
}

func TestConsumeRequiresOwner(t *testing.T) {
	e := newEnv(t)
	f := e.node("Fatima", model.NodeFarmer, "Farmer")
	p := e.node("Pedro Mill", model.NodeCompany, "Processor")
	b := e.harvest(f, e.product("cherry"), 100)

	err := e.batches.Consume(e.ctx, p, b, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestConcurrentTransactionsNeverOverdraw(t *testing.T) {
	e := newEnv(t)
	f := e.node("Fatima", model.NodeFarmer, "Farmer")
	p := e.node("Pedro Mill", model.NodeCompany, "Processor")
	b := e.harvest(f, e.product("cherry"), 100)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.batches.CreateExternalTransaction(e.ctx, f, dto.ExternalTransactionRequest{
				DestinationNodeID: p.NodeID.String(),
				SourceBatches:     []dto.SourceBatchRequest{src(b, 70)},
			})
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, service.ErrInsufficientQuantity)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "only one of two 70kg sends fits in 100kg")
	assert.True(t, e.batch(b).CurrentQuantity.Equal(decimal.NewFromInt(30)))
}

func TestArchivedBatchCannotBeSource(t *testing.T) {
	e := newEnv(t)
	f := e.node("Fatima", model.NodeFarmer, "Farmer")
	p := e.node("Pedro Mill", model.NodeCompany, "Processor")
	b := e.harvest(f, e.product("cherry"), 100)
	require.NoError(t, e.batches.ArchiveBatch(e.ctx, f, b))

	_, err := e.batches.CreateExternalTransaction(e.ctx, f, dto.ExternalTransactionRequest{
		DestinationNodeID: p.NodeID.String(),
		SourceBatches:     []dto.SourceBatchRequest{src(b, 1)},
	})
	assert.ErrorIs(t, err, service.ErrBatchArchived)

	list, err := e.batches.ListBatches(e.ctx, f, dto.ListBatchesFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = e.batches.ListBatches(e.ctx, f, dto.ListBatchesFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInternalTransactionRules(t *testing.T) {
	e := newEnv(t)
	p := e.node("Pedro Mill", model.NodeCompany, "Processor")
	cherry := e.product("cherry")
	green := e.product("green")
	a := e.harvest(p, cherry, 60)
	b := e.harvest(p, cherry, 40)
	c := e.harvest(p, green, 10)

	tests := []struct {
		name string
		req  dto.InternalTransactionRequest
	}{
		{"merge of two products", dto.InternalTransactionRequest{
			Type:          string(model.InternalMerge),
			SourceBatches: []dto.SourceBatchRequest{src(a, 10), src(c, 10)},
		}},
		{"split that loses quantity", dto.InternalTransactionRequest{
			Type:          string(model.InternalSplit),
			SourceBatches: []dto.SourceBatchRequest{src(a, 10)},
			Results: []dto.ResultBatchRequest{
				{ProductID: cherry.ID.String(), Quantity: decimal.NewFromInt(4)},
				{ProductID: cherry.ID.String(), Quantity: decimal.NewFromInt(5)},
			},
		}},
		{"split changing product", dto.InternalTransactionRequest{
			Type:          string(model.InternalSplit),
			SourceBatches: []dto.SourceBatchRequest{src(a, 10)},
			Results:       []dto.ResultBatchRequest{{ProductID: green.ID.String(), Quantity: decimal.NewFromInt(10)}},
		}},
		{"loss with results", dto.InternalTransactionRequest{
			Type:          string(model.InternalLoss),
			SourceBatches: []dto.SourceBatchRequest{src(a, 10)},
			Results:       []dto.ResultBatchRequest{{ProductID: cherry.ID.String(), Quantity: decimal.NewFromInt(10)}},
		}},
		{"processing without results", dto.InternalTransactionRequest{
			Type:          string(model.InternalProcessing),
			SourceBatches: []dto.SourceBatchRequest{src(a, 10)},
		}},
		{"unknown result product", dto.InternalTransactionRequest{
			Type:          string(model.InternalProcessing),
			SourceBatches: []dto.SourceBatchRequest{src(a, 10)},
			Results:       []dto.ResultBatchRequest{{ProductID: uuid.NewString(), Quantity: decimal.NewFromInt(10)}},
		}},
		{"duplicate source", dto.InternalTransactionRequest{
			Type:          string(model.InternalMerge),
			SourceBatches: []dto.SourceBatchRequest{src(a, 10), src(a, 10)},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.batches.CreateInternalTransaction(e.ctx, p, tt.req)
			assert.ErrorIs(t, err, service.ErrInvalidInput)
		})
	}

	assert.True(t, e.batch(a).CurrentQuantity.Equal(decimal.NewFromInt(60)))
	assert.True(t, e.batch(b).CurrentQuantity.Equal(decimal.NewFromInt(40)))
}

func TestMergeAndLoss(t *testing.T) {
	e := newEnv(t)
	p := e.node("Pedro Mill", model.NodeCompany, "Processor")
	cherry := e.product("cherry")
	a := e.harvest(p, cherry, 60)
	b := e.harvest(p, cherry, 40)

	merge, err := e.batches.CreateInternalTransaction(e.ctx, p, dto.InternalTransactionRequest{
		Type:          string(model.InternalMerge),
		SourceBatches: []dto.SourceBatchRequest{src(a, 60), src(b, 40)},
	})
	require.NoError(t, err)
	require.Len(t, merge.ResultBatches, 1)
	merged := resultID(t, merge, 0)
	assert.True(t, e.batch(merged).InitialQuantity.Equal(decimal.NewFromInt(100)))

	loss, err := e.batches.CreateInternalTransaction(e.ctx, p, dto.InternalTransactionRequest{
		Type:          string(model.InternalLoss),
		SourceBatches: []dto.SourceBatchRequest{src(merged, 5)},
	})
	require.NoError(t, err)
	assert.Empty(t, loss.ResultBatches)
	assert.True(t, e.batch(merged).CurrentQuantity.Equal(decimal.NewFromInt(95)))

	got, err := e.batches.GetTransaction(e.ctx, p, uuid.MustParse(loss.ID))
	require.NoError(t, err)
	assert.Equal(t, string(model.InternalLoss), got.Type)
}

func TestGetTransactionRequiresActor(t *testing.T) {
	e := newEnv(t)
	s := e.scenario()
	outsider := e.node("Outsider", model.NodeCompany, "Roaster")

	_, err := e.batches.GetTransaction(e.ctx, outsider, uuid.MustParse(s.t1.ID))
	assert.ErrorIs(t, err, service.ErrForbidden)

	got, err := e.batches.GetTransaction(e.ctx, s.p, uuid.MustParse(s.t1.ID))
	require.NoError(t, err)
	require.Len(t, got.SourceBatches, 1)
	assert.Equal(t, "raw", got.SourceBatches[0].ProductName)
}

// ── Claim inheritance ─────────────────────────────────────────────────────────

func TestMergeInheritsWeightedClaim(t *testing.T) {
	e := newEnv(t)
	p := e.node("Pedro Mill", model.NodeCompany, "Processor")
	cherry := e.product("cherry")
	a := e.harvest(p, cherry, 60)
	b := e.harvest(p, cherry, 40)

	claim, err := e.claims.CreateClaim(e.ctx, dto.CreateClaimRequest{
		Name:         "Deforestation free",
		Inheritable:  string(model.InheritProduct),
		Proportional: true,
	})
	require.NoError(t, err)
	_, err = e.claims.Attach(e.ctx, p, dto.AttachClaimRequest{
		TargetKind: string(model.TargetBatch),
		TargetID:   a.String(),
		ClaimID:    claim.ID,
		Status:     string(model.ClaimApproved),
	})
	require.NoError(t, err)

	sources := []dto.SourceBatchRequest{src(a, 60), src(b, 40)}
	preview, err := e.claims.InheritablePreview(e.ctx, p, dto.InheritableClaimsRequest{SourceBatches: sources})
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.InDelta(t, 60.0, preview[0].VerificationPercentage, 1e-9)

	merge, err := e.batches.CreateInternalTransaction(e.ctx, p, dto.InternalTransactionRequest{
		Type:          string(model.InternalMerge),
		SourceBatches: sources,
	})
	require.NoError(t, err)
	assert.Empty(t, merge.Warnings)

	attached, err := e.claimRepo.BatchClaims(e.ctx, []uuid.UUID{resultID(t, merge, 0)})
	require.NoError(t, err)
	require.Len(t, attached, 1)
	assert.Equal(t, model.ClaimApproved, attached[0].Status)
	assert.Equal(t, model.AttachedInherited, attached[0].AttachedFrom)
	assert.InDelta(t, 60.0, attached[0].VerificationPercentage, 1e-9)
}

func TestMixedClaimStatusIsReported(t *testing.T) {
	e := newEnv(t)
	p := e.node("Pedro Mill", model.NodeCompany, "Processor")
	cherry := e.product("cherry")
	a := e.harvest(p, cherry, 50)
	b := e.harvest(p, cherry, 50)

	claim, err := e.claims.CreateClaim(e.ctx, dto.CreateClaimRequest{Name: "Fair wage", Inheritable: string(model.InheritAll)})
	require.NoError(t, err)
	for id, status := range map[uuid.UUID]model.ClaimStatus{a: model.ClaimApproved, b: model.ClaimRejected} {
		_, err := e.claims.Attach(e.ctx, p, dto.AttachClaimRequest{
			TargetKind: string(model.TargetBatch),
			TargetID:   id.String(),
			ClaimID:    claim.ID,
			Status:     string(status),
		})
		require.NoError(t, err)
	}

	merge, err := e.batches.CreateInternalTransaction(e.ctx, p, dto.InternalTransactionRequest{
		Type:          string(model.InternalMerge),
		SourceBatches: []dto.SourceBatchRequest{src(a, 50), src(b, 50)},
	})
	require.NoError(t, err)
	assert.Len(t, merge.Warnings, 1)

	reported := e.reporter.reported()
	require.Len(t, reported, 1)
	var issue *trace.ClaimInconsistency
	require.ErrorAs(t, reported[0], &issue)
	assert.Equal(t, []uuid.UUID{b}, issue.Rejected)

	attached, err := e.claimRepo.BatchClaims(e.ctx, []uuid.UUID{resultID(t, merge, 0)})
	require.NoError(t, err)
	require.Len(t, attached, 1)
	assert.Equal(t, model.ClaimPartial, attached[0].Status)
	assert.InDelta(t, 50.0, attached[0].VerificationPercentage, 1e-9)
}

func TestStockRequestPinsClaim(t *testing.T) {
	e := newEnv(t)
	p := e.node("Pedro Mill", model.NodeCompany, "Processor")
	buyer := e.node("Roastery", model.NodeCompany, "Roaster")
	cherry := e.product("cherry")
	a := e.harvest(p, cherry, 10)

	claim, err := e.claims.CreateClaim(e.ctx, dto.CreateClaimRequest{Name: "Organic", Inheritable: string(model.InheritAll)})
	require.NoError(t, err)
	batchID := a.String()
	_, err = e.claims.CreateStockRequest(e.ctx, buyer, dto.CreateStockRequestRequest{BatchID: &batchID, ClaimIDs: []string{claim.ID}})
	require.NoError(t, err)

	resp, err := e.claims.Attach(e.ctx, p, dto.AttachClaimRequest{
		TargetKind: string(model.TargetBatch),
		TargetID:   batchID,
		ClaimID:    claim.ID,
		Status:     string(model.ClaimApproved),
	})
	require.NoError(t, err)
	assert.False(t, resp.Removable)

	split, err := e.batches.CreateInternalTransaction(e.ctx, p, dto.InternalTransactionRequest{
		Type:          string(model.InternalSplit),
		SourceBatches: []dto.SourceBatchRequest{src(a, 10)},
		Results: []dto.ResultBatchRequest{
			{ProductID: cherry.ID.String(), Quantity: decimal.NewFromInt(4)},
			{ProductID: cherry.ID.String(), Quantity: decimal.NewFromInt(6)},
		},
	})
	require.NoError(t, err)
	require.Len(t, split.ResultBatches, 2)

	attached, err := e.claimRepo.BatchClaims(e.ctx, []uuid.UUID{resultID(t, split, 0), resultID(t, split, 1)})
	require.NoError(t, err)
	require.Len(t, attached, 2)
	for _, ac := range attached {
		assert.False(t, ac.Removable)
		assert.Equal(t, model.ClaimApproved, ac.Status)
	}

	// the pin follows the lineage, not only the requested batch
	again, err := e.batches.CreateInternalTransaction(e.ctx, p, dto.InternalTransactionRequest{
		Type:          string(model.InternalSplit),
		SourceBatches: []dto.SourceBatchRequest{src(resultID(t, split, 0), 4)},
		Results: []dto.ResultBatchRequest{
			{ProductID: cherry.ID.String(), Quantity: decimal.NewFromInt(1)},
			{ProductID: cherry.ID.String(), Quantity: decimal.NewFromInt(3)},
		},
	})
	require.NoError(t, err)
	attached, err = e.claimRepo.BatchClaims(e.ctx, []uuid.UUID{resultID(t, again, 0), resultID(t, again, 1)})
	require.NoError(t, err)
	require.Len(t, attached, 2)
	for _, ac := range attached {
		assert.False(t, ac.Removable)
	}
}

func TestAttachRequiresOwner(t *testing.T) {
	e := newEnv(t)
	p := e.node("Pedro Mill", model.NodeCompany, "Processor")
	other := e.node("Other", model.NodeCompany, "Roaster")
	a := e.harvest(p, e.product("cherry"), 10)

	claim, err := e.claims.CreateClaim(e.ctx, dto.CreateClaimRequest{Name: "Organic", Inheritable: string(model.InheritAll)})
	require.NoError(t, err)
	_, err = e.claims.Attach(e.ctx, other, dto.AttachClaimRequest{
		TargetKind: string(model.TargetBatch),
		TargetID:   a.String(),
		ClaimID:    claim.ID,
	})
	assert.ErrorIs(t, err, service.ErrForbidden)
}
