package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	appsvc "markprompt/internal/app"
	"markprompt/internal/model"
	"markprompt/internal/transport/http/middleware"
	"markprompt/internal/transport/http/response"
)

type insightsService interface {
	RecentQueries(ctx context.Context, projectID uint, since time.Time, limit int) ([]model.QueryStat, error)
	MostCitedReferences(ctx context.Context, projectID uint, since time.Time, limit int) ([]appsvc.ReferenceCount, error)
}

type InsightsHandler struct {
	insights insightsService
}

func NewInsightsHandler(insights insightsService) *InsightsHandler {
	return &InsightsHandler{insights: insights}
}

// sinceParam reads the lookback window in days, defaulting to 30.
func sinceParam(c *gin.Context) time.Time {
	days := queryInt(c, "days", 30)
	if days <= 0 {
		days = 30
	}
	return time.Now().AddDate(0, 0, -days)
}

func (h *InsightsHandler) Queries(c *gin.Context) {
	stats, err := h.insights.RecentQueries(c.Request.Context(), middleware.ProjectID(c), sinceParam(c), queryInt(c, "limit", 0))
	if err != nil {
		if errors.Is(err, appsvc.ErrInvalidInput) {
			response.Error(c, 400, response.CodeBadRequest, "invalid request")
			return
		}
		response.Error(c, 500, response.CodeInternalServer, "list queries failed")
		return
	}
	response.OK(c, gin.H{"queries": stats})
}

func (h *InsightsHandler) References(c *gin.Context) {
	refs, err := h.insights.MostCitedReferences(c.Request.Context(), middleware.ProjectID(c), sinceParam(c), queryInt(c, "limit", 20))
	if err != nil {
		if errors.Is(err, appsvc.ErrInvalidInput) {
			response.Error(c, 400, response.CodeBadRequest, "invalid request")
			return
		}
		response.Error(c, 500, response.CodeInternalServer, "list references failed")
		return
	}
	response.OK(c, gin.H{"references": refs})
}
