package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markprompt/internal/model"
	"markprompt/internal/tier"
)

type spySyncService struct {
	triggerCalls int
	job          *model.SyncQueue
}

func (s *spySyncService) Trigger(ctx context.Context, projectID, sourceID uint) (*model.SyncQueue, bool, error) {
	s.triggerCalls++
	return s.job, true, nil
}

func (s *spySyncService) TriggerByConnection(ctx context.Context, integrationID, connectionID string) (*model.SyncQueue, bool, error) {
	s.triggerCalls++
	return s.job, true, nil
}

func (s *spySyncService) Cancel(ctx context.Context, projectID uint, jobID string) (*model.SyncQueue, error) {
	return s.job, nil
}

func (s *spySyncService) Latest(ctx context.Context, projectID, sourceID uint) (*model.SyncQueue, error) {
	return s.job, nil
}

func (s *spySyncService) Get(ctx context.Context, projectID uint, jobID string) (*model.SyncQueue, error) {
	return s.job, nil
}

func (s *spySyncService) List(ctx context.Context, projectID, sourceID uint, limit, offset int) ([]model.SyncQueue, error) {
	return nil, nil
}

type fakeGate struct {
	allowance *tier.Allowance
	err       error
}

func (f *fakeGate) GetAllowance(ctx context.Context, teamID uint) (*tier.Allowance, error) {
	return f.allowance, f.err
}

func syncRouter(spy *spySyncService, gate allowanceGate) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSyncHandler(spy, gate)
	r := gin.New()
	r.Use(identity(1, 2, model.TierHobby, false))
	r.POST("/syncs", h.Trigger)
	return r
}

func TestTriggerRejectedWhenQuotaExhausted(t *testing.T) {
	spy := &spySyncService{}
	gate := &fakeGate{allowance: &tier.Allowance{EmbeddingTokens: 30_000, EmbeddingTokensUsed: 30_000}}
	r := syncRouter(spy, gate)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/syncs", strings.NewReader(`{"source_id":5}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, spy.triggerCalls, "an over-quota team must not start a sync")
}

func TestTriggerAllowedWithinQuota(t *testing.T) {
	spy := &spySyncService{job: &model.SyncQueue{ID: "job-1", Status: model.SyncStatusRunning}}
	gate := &fakeGate{allowance: &tier.Allowance{EmbeddingTokens: 30_000, EmbeddingTokensUsed: 100}}
	r := syncRouter(spy, gate)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/syncs", strings.NewReader(`{"source_id":5}`))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, spy.triggerCalls)
}

func TestTriggerRequiresSourceOrConnection(t *testing.T) {
	spy := &spySyncService{}
	r := syncRouter(spy, &fakeGate{allowance: &tier.Allowance{EmbeddingTokens: -1}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/syncs", strings.NewReader(`{}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, spy.triggerCalls)
}
