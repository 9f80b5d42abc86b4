package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsvc "markprompt/internal/app"
	"markprompt/internal/model"
	"markprompt/internal/transport/http/middleware"
)

type spyRetrieval struct {
	matchCalls  int
	searchCalls int
	matches     []appsvc.SectionMatch
}

func (s *spyRetrieval) MatchSections(ctx context.Context, in appsvc.MatchInput) ([]appsvc.SectionMatch, error) {
	s.matchCalls++
	return s.matches, nil
}

func (s *spyRetrieval) SearchSections(ctx context.Context, projectID uint, query string, limit int) ([]appsvc.SectionMatch, error) {
	s.searchCalls++
	return s.matches, nil
}

func identity(projectID, teamID uint, tier model.Tier, firstParty bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextProjectIDKey, projectID)
		c.Set(middleware.ContextTeamIDKey, teamID)
		c.Set(middleware.ContextTierKey, tier)
		c.Set(middleware.ContextFirstPartyKey, firstParty)
	}
}

func sectionsRouter(spy *spyRetrieval, tier model.Tier, firstParty bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSectionsHandler(spy)
	r := gin.New()
	r.Use(identity(1, 2, tier, firstParty))
	r.POST("/sections/match", h.Match)
	r.GET("/sections/search", h.Search)
	return r
}

func TestMatchRequiresEnterprise(t *testing.T) {
	spy := &spyRetrieval{}
	r := sectionsRouter(spy, model.TierPro, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sections/match", strings.NewReader(`{"query":"q"}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, spy.matchCalls, "a gated request must not reach retrieval")
}

func TestMatchAllowsEnterprise(t *testing.T) {
	spy := &spyRetrieval{matches: []appsvc.SectionMatch{{Path: "a.md", Content: "hit", Score: 0.9}}}
	r := sectionsRouter(spy, model.TierEnterprise, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sections/match", strings.NewReader(`{"query":"q"}`))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, spy.matchCalls)

	var body struct {
		Data struct {
			Matches []appsvc.SectionMatch `json:"matches"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Matches, 1)
	assert.Equal(t, "a.md", body.Data.Matches[0].Path)
}

func TestMatchFirstPartyBypassesTierGate(t *testing.T) {
	spy := &spyRetrieval{}
	r := sectionsRouter(spy, model.TierHobby, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sections/match", strings.NewReader(`{"query":"q"}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, spy.matchCalls)
}

func TestSearchRequiresAtLeastPro(t *testing.T) {
	spy := &spyRetrieval{}

	hobby := sectionsRouter(spy, model.TierHobby, false)
	w := httptest.NewRecorder()
	hobby.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sections/search?query=cli", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, spy.searchCalls)

	// A pro team blocked from the sections API still gets search.
	pro := sectionsRouter(spy, model.TierPro, false)
	w = httptest.NewRecorder()
	pro.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sections/search?query=cli", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, spy.searchCalls)
}
