package deploy

import (
	"bytes"
	"context"
	"deploy-wizard-cli/internal/domain"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

// DefaultBaseURL is the hosted deploy backend.
const DefaultBaseURL = "https://www.yoitang.cloud/api"

const requestIDHeader = "X-Request-ID"

// Client talks to the deploy backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a backend client. baseURL must be absolute; a trailing
// slash is ignored. A nil httpClient gets a pooled client without timeout.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || !parsed.IsAbs() {
		return nil, fmt.Errorf("invalid deploy backend URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL returns the normalized backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AutoDeploy registers the service and starts its first deployment.
// It makes exactly one attempt.
func (c *Client) AutoDeploy(ctx context.Context, req *domain.DeployRequest) (*domain.DeployResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode auto deploy request: %w", err)
	}

	target := c.baseURL + "/service/auto_deploy"
	resp, err := c.send(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, &domain.SubmissionError{Op: "auto deploy", URL: target, Network: true, Err: err}
	}
	if !resp.ok() {
		return nil, &domain.SubmissionError{
			Op:     "auto deploy",
			URL:    resp.url,
			Status: resp.status,
			Body:   string(resp.body),
		}
	}

	c.logger.Info("Auto deploy accepted",
		zap.String("service", req.ServiceName),
		zap.String("branch", req.GitBranch),
		zap.Int("status", resp.status))

	return resp.result(), nil
}

// PostDeploy triggers a deployment. When the first attempt gets a non-2xx
// response it is retried once against the same URL with its trailing slash
// toggled. A first attempt that gets no response is not retried.
func (c *Client) PostDeploy(ctx context.Context, payload any) (*domain.DeployResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode deploy request: %w", err)
	}

	first := c.baseURL + "/deploy"
	resp, err := c.send(ctx, http.MethodPost, first, body)
	if err != nil {
		return nil, &domain.SubmissionError{Op: "deploy", URL: first, Network: true, Err: err}
	}
	if resp.ok() {
		return resp.result(), nil
	}

	firstFailure := describeFailure(resp)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &domain.SubmissionError{Op: "deploy", URL: first, Network: true, Err: ctxErr}
	}

	second := toggleTrailingSlash(first)
	c.logger.Warn("Deploy request failed, retrying",
		zap.String("url", first),
		zap.String("retry_url", second),
		zap.String("failure", firstFailure))

	resp, err = c.send(ctx, http.MethodPost, second, body)
	if err != nil {
		return nil, &domain.SubmissionError{
			Op:           "deploy",
			URL:          second,
			Network:      true,
			Err:          err,
			FirstURL:     first,
			FirstFailure: firstFailure,
		}
	}
	if !resp.ok() {
		return nil, &domain.SubmissionError{
			Op:           "deploy",
			URL:          resp.url,
			Status:       resp.status,
			Body:         string(resp.body),
			FirstURL:     first,
			FirstFailure: firstFailure,
		}
	}

	return resp.result(), nil
}

// GetService fetches one registered service.
func (c *Client) GetService(ctx context.Context, serviceID int) (*domain.ServiceInfo, error) {
	var service domain.ServiceInfo
	if err := c.getJSON(ctx, fmt.Sprintf("/service/%d", serviceID), "service", &service); err != nil {
		return nil, err
	}
	normalizeService(&service)
	return &service, nil
}

// ListServicesByUser fetches every service owned by userID.
func (c *Client) ListServicesByUser(ctx context.Context, userID int) ([]*domain.ServiceInfo, error) {
	var services []*domain.ServiceInfo
	if err := c.getJSON(ctx, fmt.Sprintf("/service/user/%d", userID), "services", &services); err != nil {
		return nil, err
	}
	for _, service := range services {
		normalizeService(service)
	}
	return services, nil
}

// GetLatestDeploy returns the id of the newest deployment of a service.
func (c *Client) GetLatestDeploy(ctx context.Context, serviceID int) (*domain.LatestDeploy, error) {
	var latest domain.LatestDeploy
	path := fmt.Sprintf("/deploy/service/latest/%d", serviceID)
	if err := c.getJSON(ctx, path, "latest deployment", &latest); err != nil {
		return nil, err
	}
	return &latest, nil
}

// ListDeployments returns the deployment history of a service, newest first.
func (c *Client) ListDeployments(ctx context.Context, serviceID int) ([]*domain.DeploymentRecord, error) {
	var records []*domain.DeploymentRecord
	if err := c.getJSON(ctx, fmt.Sprintf("/deploy/service/%d", serviceID), "deployments", &records); err != nil {
		return nil, err
	}
	for _, record := range records {
		record.Status = strings.ToLower(record.Status)
		if record.Status == "" {
			record.Status = "unknown"
		}
	}
	return records, nil
}

func (c *Client) getJSON(ctx context.Context, path, what string, out any) error {
	resp, err := c.send(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", what, err)
	}
	if !resp.ok() {
		return fmt.Errorf("failed to fetch %s: %d %s", what, resp.status, string(resp.body))
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", what, err)
	}
	return nil
}

type response struct {
	url    string
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r *response) result() *domain.DeployResult {
	result := &domain.DeployResult{StatusCode: r.status, URL: r.url}
	trimmed := bytes.TrimSpace(r.body)
	switch {
	case len(trimmed) == 0:
	case json.Valid(trimmed):
		result.Body = json.RawMessage(trimmed)
	default:
		quoted, _ := json.Marshal(string(trimmed))
		result.Body = quoted
	}
	return result
}

// send performs one request. An error means no complete response arrived.
func (c *Client) send(ctx context.Context, method, target string, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)

	c.logger.Debug("Sending backend request",
		zap.String("method", method),
		zap.String("url", target),
		zap.String("request_id", requestID))

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	finalURL := target
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}

	c.logger.Debug("Received backend response",
		zap.String("url", finalURL),
		zap.Int("status", httpResp.StatusCode),
		zap.String("request_id", requestID))

	return &response{url: finalURL, status: httpResp.StatusCode, body: respBody}, nil
}

func describeFailure(resp *response) string {
	return fmt.Sprintf("%d %s", resp.status, strings.TrimSpace(string(resp.body)))
}

func toggleTrailingSlash(target string) string {
	if strings.HasSuffix(target, "/") {
		return strings.TrimSuffix(target, "/")
	}
	return target + "/"
}

func normalizeService(service *domain.ServiceInfo) {
	if service.UpdatedDate == "" {
		service.UpdatedDate = service.CreatedDate
	}
}
