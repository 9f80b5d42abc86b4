package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	appsvc "markprompt/internal/app"
	"markprompt/internal/connector"
	"markprompt/internal/model"
	"markprompt/internal/tier"
	"markprompt/internal/transport/http/middleware"
	"markprompt/internal/transport/http/response"
)

type syncService interface {
	Trigger(ctx context.Context, projectID, sourceID uint) (*model.SyncQueue, bool, error)
	TriggerByConnection(ctx context.Context, integrationID, connectionID string) (*model.SyncQueue, bool, error)
	Cancel(ctx context.Context, projectID uint, jobID string) (*model.SyncQueue, error)
	Latest(ctx context.Context, projectID, sourceID uint) (*model.SyncQueue, error)
	Get(ctx context.Context, projectID uint, jobID string) (*model.SyncQueue, error)
	List(ctx context.Context, projectID, sourceID uint, limit, offset int) ([]model.SyncQueue, error)
}

type allowanceGate interface {
	GetAllowance(ctx context.Context, teamID uint) (*tier.Allowance, error)
}

type SyncHandler struct {
	syncs syncService
	gate  allowanceGate
}

func NewSyncHandler(syncs syncService, gate allowanceGate) *SyncHandler {
	return &SyncHandler{syncs: syncs, gate: gate}
}

type triggerSyncRequest struct {
	SourceID      uint   `json:"source_id"`
	IntegrationID string `json:"integration_id"`
	ConnectionID  string `json:"connection_id"`
}

type syncJobResponse struct {
	Job     *model.SyncQueue `json:"job"`
	Created bool             `json:"created"`
}

// Trigger starts a sync for a source, addressed either by source id or by
// the integration/connection pair upstream webhooks send. A team over its
// embedding credit quota is refused before any job is created.
func (h *SyncHandler) Trigger(c *gin.Context) {
	var req triggerSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, 400, response.CodeBadRequest, "invalid request body")
		return
	}
	if req.SourceID == 0 && (req.IntegrationID == "" || req.ConnectionID == "") {
		response.Error(c, 400, response.CodeBadRequest, "source_id or integration_id/connection_id required")
		return
	}

	if !h.withinEmbeddingQuota(c) {
		return
	}

	var (
		job     *model.SyncQueue
		created bool
		err     error
	)
	if req.SourceID != 0 {
		job, created, err = h.syncs.Trigger(c.Request.Context(), middleware.ProjectID(c), req.SourceID)
	} else {
		job, created, err = h.syncs.TriggerByConnection(c.Request.Context(), req.IntegrationID, req.ConnectionID)
	}
	if err != nil {
		switch {
		case errors.Is(err, appsvc.ErrSourceNotFound):
			response.Error(c, 404, response.CodeSourceNotFound, "source not found")
		case errors.Is(err, connector.ErrNotSyncable):
			response.Error(c, 400, response.CodeBadRequest, "source type does not support syncing")
		default:
			response.Error(c, 500, response.CodeInternalServer, "trigger sync failed")
		}
		return
	}
	response.OK(c, syncJobResponse{Job: job, Created: created})
}

func (h *SyncHandler) withinEmbeddingQuota(c *gin.Context) bool {
	if h.gate == nil {
		return true
	}
	allowance, err := h.gate.GetAllowance(c.Request.Context(), middleware.TeamID(c))
	if err != nil {
		if errors.Is(err, tier.ErrTeamNotFound) {
			response.Error(c, 401, response.CodeUnauthorized, "unknown team")
			return false
		}
		response.Error(c, 500, response.CodeInternalServer, "quota check failed")
		return false
	}
	if allowance.EmbeddingTokensExhausted() {
		response.Error(c, 403, response.CodeQuotaExceeded, "embedding quota exceeded for the current billing period")
		return false
	}
	return true
}

func (h *SyncHandler) Cancel(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		response.Error(c, 400, response.CodeBadRequest, "missing job id")
		return
	}
	job, err := h.syncs.Cancel(c.Request.Context(), middleware.ProjectID(c), jobID)
	if err != nil {
		if errors.Is(err, appsvc.ErrJobNotFound) {
			response.Error(c, 404, response.CodeJobNotFound, "sync job not found")
			return
		}
		response.Error(c, 500, response.CodeInternalServer, "cancel sync failed")
		return
	}
	response.OK(c, gin.H{"job": job})
}

func (h *SyncHandler) Latest(c *gin.Context) {
	sourceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	job, err := h.syncs.Latest(c.Request.Context(), middleware.ProjectID(c), sourceID)
	if err != nil {
		if errors.Is(err, appsvc.ErrSourceNotFound) {
			response.Error(c, 404, response.CodeSourceNotFound, "source not found")
			return
		}
		response.Error(c, 500, response.CodeInternalServer, "get latest sync failed")
		return
	}
	response.OK(c, gin.H{"job": job})
}

func (h *SyncHandler) Get(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		response.Error(c, 400, response.CodeBadRequest, "missing job id")
		return
	}
	job, err := h.syncs.Get(c.Request.Context(), middleware.ProjectID(c), jobID)
	if err != nil {
		if errors.Is(err, appsvc.ErrJobNotFound) {
			response.Error(c, 404, response.CodeJobNotFound, "sync job not found")
			return
		}
		response.Error(c, 500, response.CodeInternalServer, "get sync job failed")
		return
	}
	response.OK(c, gin.H{"job": job, "log": job.LogEntries()})
}

func (h *SyncHandler) List(c *gin.Context) {
	sourceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 0)
	offset := queryInt(c, "offset", 0)
	jobs, err := h.syncs.List(c.Request.Context(), middleware.ProjectID(c), sourceID, limit, offset)
	if err != nil {
		if errors.Is(err, appsvc.ErrSourceNotFound) {
			response.Error(c, 404, response.CodeSourceNotFound, "source not found")
			return
		}
		response.Error(c, 500, response.CodeInternalServer, "list sync jobs failed")
		return
	}
	response.OK(c, gin.H{"jobs": jobs})
}
