// Package client provides an HTTP client for the takedown case API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// Client is the takedown API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	actor      models.Actor
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Actor   models.Actor
	Timeout time.Duration
}

// New creates a new takedown API client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		actor: cfg.Actor,
	}
}

// SetActor sets the identity sent with every request.
func (c *Client) SetActor(actor models.Actor) {
	c.actor = actor
}

// request makes an HTTP request to the API.
func (c *Client) request(ctx context.Context, method, path string, body, result any) error {
	// JoinPath would escape a query string, so split it off first.
	pathOnly, query, _ := strings.Cut(path, "?")
	u, err := url.JoinPath(c.baseURL, pathOnly)
	if err != nil {
		return fmt.Errorf("build URL: %w", err)
	}
	if query != "" {
		u += "?" + query
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.actor.ID != "" {
		req.Header.Set("X-Actor-ID", c.actor.ID)
		req.Header.Set("X-Actor-Role", string(c.actor.Role))
	}
	if c.actor.Purpose != "" {
		req.Header.Set("X-Actor-Purpose", c.actor.Purpose)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Code != "" {
			return fmt.Errorf("API error (%d) %s: %s", resp.StatusCode, errResp.Error.Code, errResp.Error.Message)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Case API

// SubmitItem is one reported content item.
type SubmitItem struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// SubmitCaseRequest represents a case submission request.
type SubmitCaseRequest struct {
	Priority     string       `json:"priority"`
	Jurisdiction string       `json:"jurisdiction,omitempty"`
	Items        []SubmitItem `json:"items"`
}

// SubmitCase submits a new takedown case.
func (c *Client) SubmitCase(ctx context.Context, req SubmitCaseRequest) (*models.Case, error) {
	var result models.Case
	if err := c.request(ctx, http.MethodPost, "/api/v1/cases", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CaseDetail is a case with its derived SLA timer.
type CaseDetail struct {
	Case  *models.Case     `json:"case"`
	Timer *models.SLATimer `json:"timer,omitempty"`
}

// GetCase retrieves a case by ID.
func (c *Client) GetCase(ctx context.Context, id string) (*CaseDetail, error) {
	var result CaseDetail
	if err := c.request(ctx, http.MethodGet, "/api/v1/cases/"+id, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListCasesParams filters a case listing.
type ListCasesParams struct {
	Status      string
	Priority    string
	SubmitterID string
	OfficerID   string
	Limit       int
	Offset      int
}

// CaseList is a page of cases.
type CaseList struct {
	Cases []*models.Case `json:"cases"`
	Count int            `json:"count"`
}

// ListCases lists cases matching the filter.
func (c *Client) ListCases(ctx context.Context, params ListCasesParams) (*CaseList, error) {
	query := url.Values{}
	if params.Status != "" {
		query.Set("status", params.Status)
	}
	if params.Priority != "" {
		query.Set("priority", params.Priority)
	}
	if params.SubmitterID != "" {
		query.Set("submitter_id", params.SubmitterID)
	}
	if params.OfficerID != "" {
		query.Set("officer_id", params.OfficerID)
	}
	if params.Limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", params.Limit))
	}
	if params.Offset > 0 {
		query.Set("offset", fmt.Sprintf("%d", params.Offset))
	}

	path := "/api/v1/cases"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var result CaseList
	if err := c.request(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TransitionRequest represents a state transition request.
type TransitionRequest struct {
	Action    string         `json:"action"`
	Reason    string         `json:"reason,omitempty"`
	OfficerID string         `json:"officer_id,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Transition performs a state transition on a case.
func (c *Client) Transition(ctx context.Context, caseID string, req TransitionRequest) (*models.Case, error) {
	var result models.Case
	if err := c.request(ctx, http.MethodPost, "/api/v1/cases/"+caseID+"/transitions", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LineageResponse is a case's origin chain.
type LineageResponse struct {
	Lineage []*models.Case `json:"lineage"`
	Depth   int            `json:"depth"`
}

// Lineage retrieves a case's origin chain, leaf first.
func (c *Client) Lineage(ctx context.Context, caseID string) (*LineageResponse, error) {
	var result LineageResponse
	if err := c.request(ctx, http.MethodGet, "/api/v1/cases/"+caseID+"/lineage", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmissionList is a case's reported content items.
type SubmissionList struct {
	Submissions []*models.Submission `json:"submissions"`
	Count       int                  `json:"count"`
}

// Submissions lists a case's reported content items.
func (c *Client) Submissions(ctx context.Context, caseID string) (*SubmissionList, error) {
	var result SubmissionList
	if err := c.request(ctx, http.MethodGet, "/api/v1/cases/"+caseID+"/submissions", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Audit API

// AuditTrail is a page of a case's audit entries.
type AuditTrail struct {
	Entries []*models.AuditEntry `json:"entries"`
	Count   int                  `json:"count"`
}

// AuditTrail retrieves a case's audit trail.
func (c *Client) AuditTrail(ctx context.Context, caseID string, limit, offset int) (*AuditTrail, error) {
	path := fmt.Sprintf("/api/v1/cases/%s/audit?limit=%d&offset=%d", caseID, limit, offset)
	var result AuditTrail
	if err := c.request(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyResponse is the result of an audit trail verification.
type VerifyResponse struct {
	CaseID string `json:"case_id"`
	Valid  bool   `json:"valid"`
}

// VerifyAuditTrail verifies a case's audit trail integrity.
func (c *Client) VerifyAuditTrail(ctx context.Context, caseID string) (*VerifyResponse, error) {
	var result VerifyResponse
	if err := c.request(ctx, http.MethodGet, "/api/v1/cases/"+caseID+"/audit/verify", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExportAuditTrail downloads a case's audit trail in the given format
// ("json" or "csv").
func (c *Client) ExportAuditTrail(ctx context.Context, caseID, format string) ([]byte, error) {
	u, err := url.JoinPath(c.baseURL, "/api/v1/cases/"+caseID+"/audit/export")
	if err != nil {
		return nil, fmt.Errorf("build URL: %w", err)
	}
	u += "?format=" + url.QueryEscape(format)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Actor-ID", c.actor.ID)
	req.Header.Set("X-Actor-Role", string(c.actor.Role))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(data))
	}
	return data, nil
}

// Reporting API

// Stats is the aggregate case statistics view.
type Stats struct {
	TotalCases     int                         `json:"total_cases"`
	OpenCases      int                         `json:"open_cases"`
	ResolvedCases  int                         `json:"resolved_cases"`
	DuplicateCases int                         `json:"duplicate_cases"`
	SLAViolations  int                         `json:"sla_violations"`
	ByStatus       map[models.CaseStatus]int   `json:"by_status"`
	ByPriority     map[models.CasePriority]int `json:"by_priority"`
	MeanResolution time.Duration               `json:"mean_resolution_ns"`
}

// GetStats retrieves aggregate case statistics.
func (c *Client) GetStats(ctx context.Context, since time.Time) (*Stats, error) {
	path := "/api/v1/stats"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.Format(time.RFC3339))
	}
	var result Stats
	if err := c.request(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health checks

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// Health checks API health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var result HealthResponse
	if err := c.request(ctx, http.MethodGet, "/health", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
