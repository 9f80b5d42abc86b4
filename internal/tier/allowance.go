package tier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"markprompt/internal/model"
)

var ErrTeamNotFound = errors.New("team not found")

// Allowance is a team's usage picture for the current billing window.
// Quota checks against it are advisory: the cached values may lag behind
// real usage by up to the cache TTL.
type Allowance struct {
	PeriodStart         time.Time `json:"period_start"`
	PeriodEnd           time.Time `json:"period_end"`
	Completions         int64     `json:"completions"`          // -1 = unmetered
	CompletionsUsed     int64     `json:"completions_used"`
	EmbeddingTokens     int64     `json:"embedding_tokens"`     // -1 = unmetered
	EmbeddingTokensUsed int64     `json:"embedding_tokens_used"`
}

// CompletionsExhausted reports whether the team is over its completion quota.
func (a *Allowance) CompletionsExhausted() bool {
	return a.Completions >= 0 && a.CompletionsUsed >= a.Completions
}

// EmbeddingTokensExhausted reports whether the team is over its embedding
// credit quota.
func (a *Allowance) EmbeddingTokensExhausted() bool {
	return a.EmbeddingTokens >= 0 && a.EmbeddingTokensUsed >= a.EmbeddingTokens
}

type teamStore interface {
	GetByID(id uint) (*model.Team, error)
}

type completionUsageStore interface {
	CountByTeamIDSince(teamID uint, since, until time.Time) (int64, error)
}

type embeddingUsageStore interface {
	SumTokenCountsByTeamID(teamID uint, since, until time.Time) (int64, error)
}

// Gate resolves a team's plan to allowances and usage, cached in redis with
// short TTLs (completions change fast, embedding credits slowly).
type Gate struct {
	teams          teamStore
	completions    completionUsageStore
	embeddings     embeddingUsageStore
	cache          *redisv9.Client
	completionsTTL time.Duration
	embeddingsTTL  time.Duration
	now            func() time.Time
}

func NewGate(
	teams teamStore,
	completions completionUsageStore,
	embeddings embeddingUsageStore,
	cache *redisv9.Client,
	completionsTTL, embeddingsTTL time.Duration,
) *Gate {
	if completionsTTL <= 0 {
		completionsTTL = time.Hour
	}
	if embeddingsTTL <= 0 {
		embeddingsTTL = 24 * time.Hour
	}
	return &Gate{
		teams:          teams,
		completions:    completions,
		embeddings:     embeddings,
		cache:          cache,
		completionsTTL: completionsTTL,
		embeddingsTTL:  embeddingsTTL,
		now:            time.Now,
	}
}

type cachedUsage struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Used        int64     `json:"used"`
}

// GetAllowance resolves the team's billing window, quotas and usage.
func (g *Gate) GetAllowance(ctx context.Context, teamID uint) (*Allowance, error) {
	team, err := g.teams.GetByID(teamID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, ErrTeamNotFound
	}

	start, end := billingWindow(team, g.now())

	completionsUsed, err := g.usage(ctx, g.completionsKey(teamID), g.completionsTTL, start, end, func() (int64, error) {
		return g.completions.CountByTeamIDSince(teamID, start, end)
	})
	if err != nil {
		return nil, err
	}
	embeddingTokensUsed, err := g.usage(ctx, g.embeddingsKey(teamID), g.embeddingsTTL, start, end, func() (int64, error) {
		return g.embeddings.SumTokenCountsByTeamID(teamID, start, end)
	})
	if err != nil {
		return nil, err
	}

	return &Allowance{
		PeriodStart:         start,
		PeriodEnd:           end,
		Completions:         completionsAllowance(team.Tier),
		CompletionsUsed:     completionsUsed,
		EmbeddingTokens:     embeddingTokensAllowance(team.Tier),
		EmbeddingTokensUsed: embeddingTokensUsed,
	}, nil
}

// usage returns the cached counter when it matches the current window, and
// recomputes + recaches otherwise. Cache failures degrade to a direct query.
func (g *Gate) usage(ctx context.Context, key string, ttl time.Duration, start, end time.Time, compute func() (int64, error)) (int64, error) {
	if g.cache != nil {
		raw, err := g.cache.Get(ctx, key).Result()
		if err == nil {
			var cached cachedUsage
			if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil &&
				cached.PeriodStart.Equal(start) && cached.PeriodEnd.Equal(end) {
				return cached.Used, nil
			}
		} else if err != redisv9.Nil {
			log.Printf("allowance cache read failed: %v", err)
		}
	}

	used, err := compute()
	if err != nil {
		return 0, err
	}

	if g.cache != nil {
		payload, _ := json.Marshal(cachedUsage{PeriodStart: start, PeriodEnd: end, Used: used})
		if err := g.cache.Set(ctx, key, payload, ttl).Err(); err != nil {
			log.Printf("allowance cache write failed: %v", err)
		}
	}
	return used, nil
}

// billingWindow computes the current usage window: calendar month, unless
// the team is billed yearly with a cycle start, in which case the window is
// the current [anniversary, +1 year) span.
func billingWindow(team *model.Team, now time.Time) (time.Time, time.Time) {
	if team.YearlyBilling && team.BillingCycleStart != nil {
		start := *team.BillingCycleStart
		for !start.AddDate(1, 0, 0).After(now) {
			start = start.AddDate(1, 0, 0)
		}
		return start, start.AddDate(1, 0, 0)
	}
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 1, 0)
}

func (g *Gate) completionsKey(teamID uint) string {
	return fmt.Sprintf("allowance:completions:%d", teamID)
}

func (g *Gate) embeddingsKey(teamID uint) string {
	return fmt.Sprintf("allowance:embeddings:%d", teamID)
}
