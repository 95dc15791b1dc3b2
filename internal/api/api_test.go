package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GSharvesh/Hac-KP/internal/api"
	"github.com/GSharvesh/Hac-KP/internal/audit"
	"github.com/GSharvesh/Hac-KP/internal/dedup"
	"github.com/GSharvesh/Hac-KP/internal/lock"
	"github.com/GSharvesh/Hac-KP/internal/notify"
	"github.com/GSharvesh/Hac-KP/internal/reporting"
	"github.com/GSharvesh/Hac-KP/internal/workflow"
	"github.com/GSharvesh/Hac-KP/pkg/models"
	"github.com/GSharvesh/Hac-KP/tests/testutil/inmemory"
)

type apiHarness struct {
	server *httptest.Server
	store  *inmemory.CaseStore
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	auditRepo := inmemory.NewAuditRepository()
	store := inmemory.NewCaseStore(auditRepo)
	auditSvc := audit.NewService(auditRepo)
	workflowSvc := workflow.NewService(
		store,
		lock.NewMemoryLocker(),
		dedup.NewResolver(store, 0),
		auditSvc,
		notify.NopNotifier{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		workflow.DefaultConfig(),
	)
	reportingSvc := reporting.NewService(workflowSvc, auditSvc)

	router := api.NewRouter(&api.RouterConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, &api.Services{
		Workflow:  workflowSvc,
		Audit:     auditSvc,
		Reporting: reportingSvc,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &apiHarness{server: server, store: store}
}

// do issues a request with the given actor identity and decodes the JSON
// response into out when out is non-nil.
func (h *apiHarness) do(t *testing.T, method, path string, actor *models.Actor, body, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	if actor != nil {
		req.Header.Set(api.HeaderActorID, actor.ID)
		req.Header.Set(api.HeaderActorRole, string(actor.Role))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

var (
	victim  = models.Actor{ID: "victim-1", Role: models.RoleVictim}
	officer = models.Actor{ID: "officer-1", Role: models.RoleOfficer}
)

func submitRequest(url string) map[string]any {
	return map[string]any{
		"priority":     "medium",
		"jurisdiction": "US-CA",
		"items":        []map[string]string{{"kind": "URL", "content": url}},
	}
}

func (h *apiHarness) submit(t *testing.T, actor models.Actor, url string) *models.Case {
	t.Helper()
	var c models.Case
	resp := h.do(t, http.MethodPost, "/api/v1/cases", &actor, submitRequest(url), &c)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return &c
}

func TestSubmitEndpoint(t *testing.T) {
	t.Run("creates a case for the calling actor", func(t *testing.T) {
		h := newAPIHarness(t)

		c := h.submit(t, victim, "https://example.com/abuse")

		assert.NotEmpty(t, c.ID)
		assert.Equal(t, models.StatusSubmitted, c.Status)
		assert.Equal(t, victim.ID, c.SubmitterID)
		assert.NotNil(t, c.SLADueAt)
	})

	t.Run("links a duplicate to its origin", func(t *testing.T) {
		h := newAPIHarness(t)

		first := h.submit(t, victim, "https://example.com/abuse")
		second := h.submit(t, models.Actor{ID: "victim-2", Role: models.RoleVictim},
			"HTTPS://EXAMPLE.COM/abuse/?utm_source=mail")

		assert.Equal(t, first.ID, second.OriginCaseID)
		assert.Equal(t, 1, second.LineageDepth)
	})

	t.Run("rejects missing identity", func(t *testing.T) {
		h := newAPIHarness(t)

		resp := h.do(t, http.MethodPost, "/api/v1/cases", nil, submitRequest("https://example.com"), nil)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects unknown priority", func(t *testing.T) {
		h := newAPIHarness(t)

		body := submitRequest("https://example.com")
		body["priority"] = "catastrophic"
		resp := h.do(t, http.MethodPost, "/api/v1/cases", &victim, body, nil)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects empty items", func(t *testing.T) {
		h := newAPIHarness(t)

		resp := h.do(t, http.MethodPost, "/api/v1/cases", &victim,
			map[string]any{"priority": "low", "items": []map[string]string{}}, nil)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCaseEndpoints(t *testing.T) {
	t.Run("get returns the case with its timer", func(t *testing.T) {
		h := newAPIHarness(t)
		c := h.submit(t, victim, "https://example.com/1")

		var body struct {
			Case  models.Case      `json:"case"`
			Timer *models.SLATimer `json:"timer"`
		}
		resp := h.do(t, http.MethodGet, "/api/v1/cases/"+c.ID, &officer, nil, &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, c.ID, body.Case.ID)
		require.NotNil(t, body.Timer)
		assert.Equal(t, models.TimerPending, body.Timer.Status)
	})

	t.Run("unknown case returns 404", func(t *testing.T) {
		h := newAPIHarness(t)

		resp := h.do(t, http.MethodGet, "/api/v1/cases/nope", &officer, nil, nil)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("list filters by status", func(t *testing.T) {
		h := newAPIHarness(t)
		h.submit(t, victim, "https://example.com/1")
		h.submit(t, victim, "https://example.com/2")

		var body struct {
			Cases []*models.Case `json:"cases"`
			Count int            `json:"count"`
		}
		resp := h.do(t, http.MethodGet, "/api/v1/cases?status=Submitted", &officer, nil, &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, body.Count)
	})

	t.Run("submissions are listed per case", func(t *testing.T) {
		h := newAPIHarness(t)
		c := h.submit(t, victim, "https://example.com/1")

		var body struct {
			Submissions []*models.Submission `json:"submissions"`
		}
		resp := h.do(t, http.MethodGet, "/api/v1/cases/"+c.ID+"/submissions", &officer, nil, &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, body.Submissions, 1)
		assert.Equal(t, "https://example.com/1", body.Submissions[0].NormalizedContent)
	})

	t.Run("lineage walks to the root", func(t *testing.T) {
		h := newAPIHarness(t)
		root := h.submit(t, victim, "https://example.com/chain")
		dup := h.submit(t, models.Actor{ID: "victim-2", Role: models.RoleVictim}, "https://example.com/chain")

		var body struct {
			Lineage []*models.Case `json:"lineage"`
			Depth   int            `json:"depth"`
		}
		resp := h.do(t, http.MethodGet, "/api/v1/cases/"+dup.ID+"/lineage", &officer, nil, &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, body.Lineage, 2)
		assert.Equal(t, dup.ID, body.Lineage[0].ID)
		assert.Equal(t, root.ID, body.Lineage[1].ID)
		assert.Equal(t, 1, body.Depth)
	})
}

func TestTransitionEndpoint(t *testing.T) {
	t.Run("officer starts review", func(t *testing.T) {
		h := newAPIHarness(t)
		c := h.submit(t, victim, "https://example.com/1")

		var updated models.Case
		resp := h.do(t, http.MethodPost, "/api/v1/cases/"+c.ID+"/transitions", &officer,
			map[string]any{"action": "start_review", "officer_id": officer.ID}, &updated)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, models.StatusInReview, updated.Status)
		assert.Equal(t, officer.ID, updated.AssignedOfficerID)
	})

	t.Run("victim cannot start review", func(t *testing.T) {
		h := newAPIHarness(t)
		c := h.submit(t, victim, "https://example.com/1")

		resp := h.do(t, http.MethodPost, "/api/v1/cases/"+c.ID+"/transitions", &victim,
			map[string]any{"action": "start_review", "officer_id": officer.ID}, nil)

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("reject requires a reason from the closed vocabulary", func(t *testing.T) {
		h := newAPIHarness(t)
		c := h.submit(t, victim, "https://example.com/1")

		resp := h.do(t, http.MethodPost, "/api/v1/cases/"+c.ID+"/transitions", &officer,
			map[string]any{"action": "reject", "reason": "did_not_like_it"}, nil)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("transitions on a closed case return 409", func(t *testing.T) {
		h := newAPIHarness(t)
		c := h.submit(t, victim, "https://example.com/1")

		steps := []map[string]any{
			{"action": "start_review", "officer_id": officer.ID},
			{"action": "approve"},
			{"action": "close"},
		}
		for _, step := range steps {
			resp := h.do(t, http.MethodPost, "/api/v1/cases/"+c.ID+"/transitions", &officer, step, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}

		resp := h.do(t, http.MethodPost, "/api/v1/cases/"+c.ID+"/transitions", &officer,
			map[string]any{"action": "start_review", "officer_id": officer.ID}, nil)

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("actions endpoint reflects the actor role", func(t *testing.T) {
		h := newAPIHarness(t)
		c := h.submit(t, victim, "https://example.com/1")

		var body struct {
			Actions []models.Action `json:"actions"`
		}
		resp := h.do(t, http.MethodGet, "/api/v1/cases/"+c.ID+"/actions", &officer, nil, &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body.Actions, models.ActionStartReview)
		assert.NotContains(t, body.Actions, models.ActionAutoEscalate)

		resp = h.do(t, http.MethodGet, "/api/v1/cases/"+c.ID+"/actions", &victim, nil, &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, body.Actions)
	})
}

func TestAuditEndpoints(t *testing.T) {
	t.Run("trail lists entries in sequence order", func(t *testing.T) {
		h := newAPIHarness(t)
		c := h.submit(t, victim, "https://example.com/1")
		h.do(t, http.MethodPost, "/api/v1/cases/"+c.ID+"/transitions", &officer,
			map[string]any{"action": "start_review", "officer_id": officer.ID}, nil)

		var body struct {
			Entries []*models.AuditEntry `json:"entries"`
			Count   int                  `json:"count"`
		}
		resp := h.do(t, http.MethodGet, "/api/v1/cases/"+c.ID+"/audit", &officer, nil, &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 2, body.Count)
		assert.Equal(t, int64(1), body.Entries[0].Seq)
		assert.Equal(t, models.ActionSubmit, body.Entries[0].Action)
		assert.Equal(t, int64(2), body.Entries[1].Seq)
	})

	t.Run("verify reports a healthy trail", func(t *testing.T) {
		h := newAPIHarness(t)
		c := h.submit(t, victim, "https://example.com/1")

		var body struct {
			Valid bool `json:"valid"`
		}
		resp := h.do(t, http.MethodGet, "/api/v1/cases/"+c.ID+"/audit/verify", &officer, nil, &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, body.Valid)
	})

	t.Run("export returns CSV when requested", func(t *testing.T) {
		h := newAPIHarness(t)
		c := h.submit(t, victim, "https://example.com/1")

		resp := h.do(t, http.MethodGet, "/api/v1/cases/"+c.ID+"/audit/export?format=csv", &officer, nil, nil)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(data), "case_id")
	})
}

func TestStatsEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	h.submit(t, victim, "https://example.com/1")
	h.submit(t, models.Actor{ID: "victim-2", Role: models.RoleVictim}, "https://example.com/1")

	var stats reporting.Stats
	resp := h.do(t, http.MethodGet, "/api/v1/stats", &officer, nil, &stats)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, stats.TotalCases)
	assert.Equal(t, 1, stats.DuplicateCases)
	assert.Equal(t, 2, stats.OpenCases)
}

func TestHealthEndpoints(t *testing.T) {
	h := newAPIHarness(t)

	for _, path := range []string{"/health", "/ready", "/live"} {
		resp := h.do(t, http.MethodGet, path, nil, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
