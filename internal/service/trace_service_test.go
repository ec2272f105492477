package service_test

import (
	"bytes"
	"testing"

	"fairtrace/internal/dto"
	"fairtrace/internal/model"
	"fairtrace/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceStagesFollowTheChain(t *testing.T) {
	e := newEnv(t)
	s := e.scenario()

	resp, err := e.traces.Stages(e.ctx, s.final, service.Viewer{NodeID: &s.e.NodeID})
	require.NoError(t, err)
	assert.Equal(t, s.final.String(), resp.Program.BatchID)
	assert.Equal(t, "processed", resp.Program.ProductName)

	require.Len(t, resp.Stages, 2)
	farm, proc := resp.Stages[0], resp.Stages[1]
	assert.Equal(t, "Farmer", farm.Title)
	assert.Equal(t, 2, farm.Tier)
	require.Len(t, farm.Actors, 1)
	assert.Equal(t, s.f.NodeID, farm.Actors[0].ID)
	require.Len(t, farm.StageProducts, 1)
	assert.Equal(t, "raw", farm.StageProducts[0].Name)

	assert.Equal(t, "Processor", proc.Title)
	assert.Equal(t, 1, proc.Tier)
	require.Len(t, proc.Actors, 1)
	assert.Equal(t, s.p.NodeID, proc.Actors[0].ID)
	require.Len(t, proc.StageProducts, 1)
	assert.Equal(t, "processed", proc.StageProducts[0].Name)
}

func TestTraceMapConnectsActors(t *testing.T) {
	e := newEnv(t)
	s := e.scenario()

	resp, err := e.traces.Map(e.ctx, s.final, service.Viewer{NodeID: &s.e.NodeID})
	require.NoError(t, err)
	require.Len(t, resp.Map, 3)

	tiers := map[uuid.UUID]int{}
	for _, r := range resp.Map {
		tiers[r.ID] = r.Tier
	}
	assert.Equal(t, map[uuid.UUID]int{s.f.NodeID: 2, s.p.NodeID: 1, s.e.NodeID: 0}, tiers)
}

func TestTraceTransactionsListsClosure(t *testing.T) {
	e := newEnv(t)
	s := e.scenario()

	resp, err := e.traces.Transactions(e.ctx, s.final, service.Viewer{NodeID: &s.p.NodeID})
	require.NoError(t, err)
	require.Len(t, resp.Transactions, 3)
	assert.Equal(t, s.t1.ID, resp.Transactions[0].ID)
	assert.Equal(t, s.t2.ID, resp.Transactions[1].ID)
	assert.Equal(t, s.t3.ID, resp.Transactions[2].ID)
}

func TestTraceFarmBatchHasSingleStage(t *testing.T) {
	e := newEnv(t)
	f := e.node("Fatima", model.NodeFarmer, "Farmer")
	b := e.harvest(f, e.product("cherry"), 50)

	parents, err := e.resolver.ParentTransactions(e.ctx, e.batch(b), service.ResolveOptions{})
	require.NoError(t, err)
	assert.Empty(t, parents)

	resp, err := e.traces.Stages(e.ctx, b, service.Viewer{NodeID: &f.NodeID})
	require.NoError(t, err)
	require.Len(t, resp.Stages, 1)
	assert.Equal(t, "Farmer", resp.Stages[0].Title)
	assert.Equal(t, f.NodeID, resp.Stages[0].Actors[0].ID)
}

func TestTraceVisibility(t *testing.T) {
	e := newEnv(t)
	s := e.scenario()
	outsider := e.node("Outsider", model.NodeCompany, "Roaster")

	cached := e.cache.Len()
	_, err := e.traces.Map(e.ctx, s.final, service.Viewer{})
	assert.ErrorIs(t, err, service.ErrBatchNotVisible)
	assert.Equal(t, cached, e.cache.Len(), "anonymous callers are rejected before resolution")

	_, err = e.traces.Map(e.ctx, s.final, service.Viewer{NodeID: &outsider.NodeID})
	assert.ErrorIs(t, err, service.ErrBatchNotVisible)

	// upstream actors may follow the batch they contributed to
	_, err = e.traces.Map(e.ctx, s.final, service.Viewer{NodeID: &s.f.NodeID})
	assert.NoError(t, err)

	_, err = e.traces.Map(e.ctx, s.final, service.Viewer{NodeID: &outsider.NodeID, Admin: true})
	assert.NoError(t, err)
}

func TestPublicTraceUsesTheme(t *testing.T) {
	e := newEnv(t)
	s := e.scenario()

	theme, err := e.nodes.CreateTheme(e.ctx, s.e, dto.CreateThemeRequest{
		Name:        "export-story",
		StageTitles: map[string]string{e.ops["Farmer"].ID.String(): "Grown by"},
	})
	require.NoError(t, err)
	themeID := uuid.MustParse(theme.ID)

	resp, err := e.traces.Stages(e.ctx, s.final, service.Viewer{ThemeID: &themeID})
	require.NoError(t, err)
	require.Len(t, resp.Stages, 2)
	assert.Equal(t, "Grown by", resp.Stages[0].Title)
	assert.Equal(t, "Processor", resp.Stages[1].Title)
	require.NotNil(t, resp.Program.ThemeID)
	assert.Equal(t, theme.ID, *resp.Program.ThemeID)

	// a theme only renders its own node's batches
	other, err := e.nodes.CreateTheme(e.ctx, s.p, dto.CreateThemeRequest{Name: "mill-story"})
	require.NoError(t, err)
	otherID := uuid.MustParse(other.ID)
	_, err = e.traces.Stages(e.ctx, s.final, service.Viewer{ThemeID: &otherID})
	assert.ErrorIs(t, err, service.ErrThemeMismatch)
}

func TestTraceClaimsShowsCarriers(t *testing.T) {
	e := newEnv(t)
	s := e.scenario()

	claim, err := e.claims.CreateClaim(e.ctx, dto.CreateClaimRequest{Name: "Organic", Inheritable: string(model.InheritNone)})
	require.NoError(t, err)
	_, err = e.claims.Attach(e.ctx, s.e, dto.AttachClaimRequest{
		TargetKind: string(model.TargetBatch),
		TargetID:   s.final.String(),
		ClaimID:    claim.ID,
		Status:     string(model.ClaimApproved),
	})
	require.NoError(t, err)

	resp, err := e.traces.Claims(e.ctx, s.final, service.Viewer{NodeID: &s.e.NodeID})
	require.NoError(t, err)
	require.Len(t, resp.Claims, 1)
	assert.Equal(t, "Organic", resp.Claims[0].Name)
	assert.Equal(t, model.ClaimApproved, resp.Claims[0].Status)
	assert.Equal(t, 100.0, resp.Claims[0].VerificationPercentage)
}

func TestTraceReportWritesPDF(t *testing.T) {
	e := newEnv(t)
	s := e.scenario()

	var buf bytes.Buffer
	require.NoError(t, e.traces.Report(e.ctx, s.final, service.Viewer{NodeID: &s.e.NodeID}, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}
