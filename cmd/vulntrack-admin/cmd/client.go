package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the VulnTrack API HTTP client.
type Client struct {
	baseURL    string
	token      string
	asUser     string
	asRole     string
	httpClient *http.Client
	verbose    bool
}

// NewClient creates a new API client. When asUser is set the dev identity
// headers are sent instead of a bearer token; the server only honors them
// outside production.
func NewClient(baseURL, token string, verbose bool, asUser, asRole string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		asUser:  asUser,
		asRole:  asRole,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		verbose: verbose,
	}
}

// Do performs an HTTP request and returns the response body.
func (c *Client) Do(method, path string, body any) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	return c.do(method, path, "application/json", "", reqBody)
}

// DoRaw performs an HTTP request with a preassembled body, for payloads that
// must not be re-marshalled (feed files). A non-empty encoding is sent as the
// Content-Encoding header for pre-compressed payloads.
func (c *Client) DoRaw(method, path, contentType string, body []byte, encoding string) ([]byte, int, error) {
	return c.do(method, path, contentType, encoding, bytes.NewReader(body))
}

func (c *Client) do(method, path, contentType, encoding string, reqBody io.Reader) ([]byte, int, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(context.Background(), method, url, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	if c.asUser != "" {
		req.Header.Set("X-User-ID", c.asUser)
		if c.asRole != "" {
			req.Header.Set("X-User-Role", c.asRole)
		}
	} else {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", contentType)
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	req.Header.Set("Accept", "application/json")

	if c.verbose {
		fmt.Printf(">>> %s %s\n", method, url)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if c.verbose {
		fmt.Printf("<<< %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, parseAPIError(resp.StatusCode, respBody)
	}

	return respBody, resp.StatusCode, nil
}

// Get performs a GET request.
func (c *Client) Get(path string) ([]byte, error) {
	data, _, err := c.Do(http.MethodGet, path, nil)
	return data, err
}

// Post performs a POST request.
func (c *Client) Post(path string, body any) ([]byte, error) {
	data, _, err := c.Do(http.MethodPost, path, body)
	return data, err
}

// Put performs a PUT request.
func (c *Client) Put(path string, body any) ([]byte, error) {
	data, _, err := c.Do(http.MethodPut, path, body)
	return data, err
}

// APIError represents an error returned by the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func parseAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
		if len(parsed.Details) > 0 {
			fields := make([]string, len(parsed.Details))
			for i, d := range parsed.Details {
				fields[i] = d.Field + ": " + d.Message
			}
			apiErr.Message += " (" + strings.Join(fields, "; ") + ")"
		}
	}

	if apiErr.Message == "" {
		switch statusCode {
		case 401:
			apiErr.Message = "unauthorized: invalid or missing token"
		case 403:
			apiErr.Message = "forbidden: insufficient role"
		case 404:
			apiErr.Message = "resource not found"
		case 409:
			apiErr.Message = "conflict"
		default:
			apiErr.Message = fmt.Sprintf("API error: %d %s", statusCode, http.StatusText(statusCode))
		}
	}

	return apiErr
}

// Response types matching server handler structs.

type ConfigResponse struct {
	CriticalDays int    `json:"critical_days"`
	HighDays     int    `json:"high_days"`
	MediumDays   int    `json:"medium_days"`
	LowDays      int    `json:"low_days"`
	ImportMode   string `json:"import_mode"`
	UpdatedBy    string `json:"updated_by,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

type AssetResponse struct {
	ID              string   `json:"id"`
	Hostname        string   `json:"hostname"`
	RootDomain      string   `json:"root_domain,omitempty"`
	LocalIP         string   `json:"local_ip,omitempty"`
	Owner           string   `json:"owner,omitempty"`
	HostGroups      []string `json:"host_groups,omitempty"`
	CloudAccountID  string   `json:"cloud_account_id,omitempty"`
	CloudInstanceID string   `json:"cloud_instance_id,omitempty"`
	OSVersion       string   `json:"os_version,omitempty"`
	ADDomain        string   `json:"ad_domain,omitempty"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
	LastSeenAt      string   `json:"last_seen_at"`
}

type AssetListResponse struct {
	Data       []AssetResponse `json:"data"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int             `json:"total_pages"`
}

type VulnerabilityResponse struct {
	ID              string  `json:"id"`
	AssetID         string  `json:"asset_id"`
	CVEID           string  `json:"cve_id"`
	Severity        string  `json:"severity"`
	CVSSScore       float64 `json:"cvss_score,omitempty"`
	RawSeverity     string  `json:"raw_severity,omitempty"`
	ProductVersions string  `json:"product_versions,omitempty"`
	Status          string  `json:"status"`
	AgeDays         int     `json:"age_days"`
	DiscoveredAt    string  `json:"discovered_at"`
	PatchPublished  *string `json:"patch_published_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

type VulnerabilityListResponse struct {
	Data       []VulnerabilityResponse `json:"data"`
	Total      int64                   `json:"total"`
	Page       int                     `json:"page"`
	PerPage    int                     `json:"per_page"`
	TotalPages int                     `json:"total_pages"`
}

type ExceptionRequestResponse struct {
	ID            string  `json:"id"`
	Scope         string  `json:"scope"`
	AssetID       *string `json:"asset_id,omitempty"`
	CVEID         string  `json:"cve_id"`
	Justification string  `json:"justification"`
	ExpiresAt     string  `json:"expires_at"`
	Status        string  `json:"status"`
	RequestedBy   string  `json:"requested_by"`
	RequestedAt   string  `json:"requested_at"`
	DecidedBy     *string `json:"decided_by,omitempty"`
	DecidedAt     *string `json:"decided_at,omitempty"`
}

type ExceptionRequestListResponse struct {
	Data       []ExceptionRequestResponse `json:"data"`
	Total      int64                      `json:"total"`
	Page       int                        `json:"page"`
	PerPage    int                        `json:"per_page"`
	TotalPages int                        `json:"total_pages"`
}

type ExceptionResponse struct {
	ID        string  `json:"id"`
	RequestID string  `json:"request_id"`
	Scope     string  `json:"scope"`
	AssetID   *string `json:"asset_id,omitempty"`
	CVEID     string  `json:"cve_id"`
	GrantedBy string  `json:"granted_by"`
	ExpiresAt string  `json:"expires_at"`
	CreatedAt string  `json:"created_at"`
}

type ExceptionListResponse struct {
	Data       []ExceptionResponse `json:"data"`
	Total      int64               `json:"total"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
	TotalPages int                 `json:"total_pages"`
}

type ImportErrorDetail struct {
	Hostname string `json:"hostname"`
	Error    string `json:"error"`
}

type ImportResponse struct {
	AssetsCreated int                 `json:"assets_created"`
	AssetsUpdated int                 `json:"assets_updated"`
	Imported      int                 `json:"imported"`
	Skipped       int                 `json:"skipped"`
	Remediated    int                 `json:"remediated"`
	Errors        []ImportErrorDetail `json:"errors,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
}

type SweepResponse struct {
	Expired int64 `json:"expired"`
}
