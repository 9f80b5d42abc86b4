package tier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markprompt/internal/model"
)

func TestPlanPredicates(t *testing.T) {
	assert.False(t, CanAccessSectionsAPI(model.TierHobby))
	assert.False(t, CanAccessSectionsAPI(model.TierPro))
	assert.True(t, CanAccessSectionsAPI(model.TierEnterprise))

	assert.False(t, AtLeastPro(model.TierHobby))
	assert.True(t, AtLeastPro(model.TierPro))
	assert.True(t, AtLeastPro(model.TierEnterprise))
	assert.False(t, AtLeastPro(model.Tier("")))
}

func TestBillingWindowMonthly(t *testing.T) {
	now := time.Date(2023, time.June, 17, 14, 30, 0, 0, time.UTC)
	start, end := billingWindow(&model.Team{Tier: model.TierPro}, now)

	assert.Equal(t, time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2023, time.July, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestBillingWindowYearlyAnchored(t *testing.T) {
	cycleStart := time.Date(2020, time.March, 15, 0, 0, 0, 0, time.UTC)
	team := &model.Team{Tier: model.TierPro, YearlyBilling: true, BillingCycleStart: &cycleStart}

	// Mid-cycle: the window is the current anniversary year.
	now := time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)
	start, end := billingWindow(team, now)
	assert.Equal(t, time.Date(2023, time.March, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), end)

	// Just before the anniversary the previous window still applies.
	now = time.Date(2023, time.March, 14, 23, 0, 0, 0, time.UTC)
	start, end = billingWindow(team, now)
	assert.Equal(t, time.Date(2022, time.March, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2023, time.March, 15, 0, 0, 0, 0, time.UTC), end)
}

func TestBillingWindowYearlyWithoutAnchorFallsBackToMonthly(t *testing.T) {
	now := time.Date(2023, time.June, 17, 0, 0, 0, 0, time.UTC)
	start, _ := billingWindow(&model.Team{YearlyBilling: true}, now)
	assert.Equal(t, time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC), start)
}

type fakeTeamStore struct {
	team *model.Team
}

func (f *fakeTeamStore) GetByID(id uint) (*model.Team, error) { return f.team, nil }

type fakeCompletionUsage struct {
	used int64
}

func (f *fakeCompletionUsage) CountByTeamIDSince(teamID uint, since, until time.Time) (int64, error) {
	return f.used, nil
}

type fakeEmbeddingUsage struct {
	used int64
}

func (f *fakeEmbeddingUsage) SumTokenCountsByTeamID(teamID uint, since, until time.Time) (int64, error) {
	return f.used, nil
}

func TestGetAllowanceByTier(t *testing.T) {
	cases := []struct {
		tier            model.Tier
		completions     int64
		embeddingTokens int64
	}{
		{model.TierHobby, 25, 30_000},
		{model.TierPro, 1_000, 1_000_000},
		{model.TierEnterprise, -1, -1},
	}
	for _, tc := range cases {
		t.Run(string(tc.tier), func(t *testing.T) {
			gate := NewGate(
				&fakeTeamStore{team: &model.Team{ID: 1, Tier: tc.tier}},
				&fakeCompletionUsage{used: 5},
				&fakeEmbeddingUsage{used: 1000},
				nil, 0, 0,
			)
			allowance, err := gate.GetAllowance(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tc.completions, allowance.Completions)
			assert.Equal(t, tc.embeddingTokens, allowance.EmbeddingTokens)
			assert.Equal(t, int64(5), allowance.CompletionsUsed)
			assert.Equal(t, int64(1000), allowance.EmbeddingTokensUsed)
		})
	}
}

func TestGetAllowanceUnknownTeam(t *testing.T) {
	gate := NewGate(&fakeTeamStore{}, &fakeCompletionUsage{}, &fakeEmbeddingUsage{}, nil, 0, 0)
	_, err := gate.GetAllowance(context.Background(), 42)
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestAllowanceExhaustion(t *testing.T) {
	metered := Allowance{Completions: 25, CompletionsUsed: 25, EmbeddingTokens: 30_000, EmbeddingTokensUsed: 29_999}
	assert.True(t, metered.CompletionsExhausted())
	assert.False(t, metered.EmbeddingTokensExhausted())

	unmetered := Allowance{Completions: -1, CompletionsUsed: 1 << 40, EmbeddingTokens: -1, EmbeddingTokensUsed: 1 << 40}
	assert.False(t, unmetered.CompletionsExhausted())
	assert.False(t, unmetered.EmbeddingTokensExhausted())
}
