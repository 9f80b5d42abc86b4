package tier

import "markprompt/internal/model"

// Allowances per plan. -1 means unmetered.
const (
	hobbyCompletions      = 25
	hobbyEmbeddingTokens  = 30_000
	proCompletions        = 1_000
	proEmbeddingTokens    = 1_000_000
	unmetered             = int64(-1)
)

// CanAccessSectionsAPI reports whether a plan may call the sections API.
// Third-party section access is an enterprise capability; the first-party
// client bypasses this predicate at the transport layer.
func CanAccessSectionsAPI(t model.Tier) bool {
	return t == model.TierEnterprise
}

// AtLeastPro reports whether the plan is pro or above.
func AtLeastPro(t model.Tier) bool {
	return t == model.TierPro || t == model.TierEnterprise
}

func completionsAllowance(t model.Tier) int64 {
	switch t {
	case model.TierEnterprise:
		return unmetered
	case model.TierPro:
		return proCompletions
	default:
		return hobbyCompletions
	}
}

func embeddingTokensAllowance(t model.Tier) int64 {
	switch t {
	case model.TierEnterprise:
		return unmetered
	case model.TierPro:
		return proEmbeddingTokens
	default:
		return hobbyEmbeddingTokens
	}
}
