package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/mo"

	"research-cli/internal/config"
	"research-cli/internal/protocol"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no overall timeout; streams are bounded by ctx.
	streamClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Server, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		streamClient: &http.Client{},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// --- Job submission ---

type ResearchRequest struct {
	Company    string `json:"company"`
	CompanyURL string `json:"company_url,omitempty"`
	Industry   string `json:"industry,omitempty"`
	HQLocation string `json:"hq_location,omitempty"`
}

type ResearchResponse struct {
	Status       string `json:"status"`
	JobID        string `json:"job_id"`
	Message      string `json:"message,omitempty"`
	WebSocketURL string `json:"websocket_url,omitempty"`
}

// SubmitResearch starts a research job and returns its id.
func (c *Client) SubmitResearch(ctx context.Context, r ResearchRequest) (*ResearchResponse, error) {
	r.Company = strings.TrimSpace(r.Company)
	if r.Company == "" {
		return nil, errors.New("company name is required")
	}
	var resp ResearchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/research", r, &resp); err != nil {
		return nil, err
	}
	if resp.JobID == "" {
		return nil, fmt.Errorf("server accepted research without a job id (status %q)", resp.Status)
	}
	return &resp, nil
}

// WebSocketURL returns the status stream endpoint for a job.
func (c *Client) WebSocketURL(jobID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/research/ws/" + url.PathEscape(jobID)
	return u.String(), nil
}

// --- Job status ---

// JobSnapshot fetches the current status of a job. Servers without job
// persistence answer 501; the report endpoint is used instead and a found
// report is reported as a completed job.
func (c *Client) JobSnapshot(ctx context.Context, jobID string) (protocol.Snapshot, error) {
	var wire protocol.SnapshotWire
	err := c.doJSON(ctx, http.MethodGet, "/research/"+url.PathEscape(jobID), nil, &wire)

	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotImplemented {
		return c.snapshotFromReport(ctx, jobID)
	}
	if err != nil {
		return protocol.Snapshot{}, err
	}

	snap := wire.Snapshot()
	if snap.JobID == "" {
		snap.JobID = jobID
	}
	if snap.Status == protocol.StatusCompleted && snap.Report.IsAbsent() {
		if report, err := c.Report(ctx, jobID); err == nil && report != "" {
			snap.Report = mo.Some(report)
		}
	}
	return snap, nil
}

func (c *Client) snapshotFromReport(ctx context.Context, jobID string) (protocol.Snapshot, error) {
	report, err := c.Report(ctx, jobID)
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotFound {
		// Still running, or unknown to the server.
		return protocol.Snapshot{JobID: jobID}, nil
	}
	if err != nil {
		return protocol.Snapshot{}, err
	}
	return protocol.Snapshot{
		JobID:  jobID,
		Status: protocol.StatusCompleted,
		Report: mo.Some(report),
	}, nil
}

type reportResponse struct {
	Report string `json:"report"`
}

// Report fetches the final report text of a job.
func (c *Client) Report(ctx context.Context, jobID string) (string, error) {
	var resp reportResponse
	if err := c.doJSON(ctx, http.MethodGet, "/research/"+url.PathEscape(jobID)+"/report", nil, &resp); err != nil {
		return "", err
	}
	return resp.Report, nil
}

// --- Generic JSON helper ---

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody interface{}, result interface{}) error {
	var bodyReader io.Reader
	if reqBody != nil && method != http.MethodGet {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newRequestError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}
