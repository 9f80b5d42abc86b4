package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	appsvc "markprompt/internal/app"
	"markprompt/internal/tier"
	"markprompt/internal/transport/http/middleware"
	"markprompt/internal/transport/http/response"
)

type retrievalService interface {
	MatchSections(ctx context.Context, in appsvc.MatchInput) ([]appsvc.SectionMatch, error)
	SearchSections(ctx context.Context, projectID uint, query string, limit int) ([]appsvc.SectionMatch, error)
}

// SectionsHandler exposes retrieval over ingested sections. The semantic
// match endpoint is an enterprise feature; lexical search needs pro or
// above. First-party clients bypass both gates.
type SectionsHandler struct {
	retrieval retrievalService
}

func NewSectionsHandler(retrieval retrievalService) *SectionsHandler {
	return &SectionsHandler{retrieval: retrieval}
}

type matchSectionsRequest struct {
	Query      string  `json:"query" binding:"required"`
	MinScore   float64 `json:"min_score"`
	MaxMatches int     `json:"max_matches"`
}

func (h *SectionsHandler) Match(c *gin.Context) {
	if !middleware.IsFirstParty(c) && !tier.CanAccessSectionsAPI(middleware.CallerTier(c)) {
		response.Error(c, 403, response.CodeTierForbidden, "the sections API requires an enterprise plan")
		return
	}

	var req matchSectionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, 400, response.CodeBadRequest, "invalid request body")
		return
	}

	matches, err := h.retrieval.MatchSections(c.Request.Context(), appsvc.MatchInput{
		ProjectID:  middleware.ProjectID(c),
		Query:      req.Query,
		MinScore:   req.MinScore,
		MaxMatches: req.MaxMatches,
	})
	if err != nil {
		if errors.Is(err, appsvc.ErrInvalidInput) {
			response.Error(c, 400, response.CodeBadRequest, "invalid query")
			return
		}
		response.Error(c, 500, response.CodeInternalServer, "match sections failed")
		return
	}
	response.OK(c, gin.H{"matches": matches})
}

func (h *SectionsHandler) Search(c *gin.Context) {
	if !middleware.IsFirstParty(c) && !tier.AtLeastPro(middleware.CallerTier(c)) {
		response.Error(c, 403, response.CodeTierForbidden, "search requires a pro plan or above")
		return
	}

	query := c.Query("query")
	limit := queryInt(c, "limit", 0)
	matches, err := h.retrieval.SearchSections(c.Request.Context(), middleware.ProjectID(c), query, limit)
	if err != nil {
		if errors.Is(err, appsvc.ErrInvalidInput) {
			response.Error(c, 400, response.CodeBadRequest, "invalid query")
			return
		}
		response.Error(c, 500, response.CodeInternalServer, "search sections failed")
		return
	}
	response.OK(c, gin.H{"matches": matches})
}
