package gitlab

import (
	"context"
	"deploy-wizard-cli/internal/classifier"
	"deploy-wizard-cli/internal/domain"
	"errors"
	"fmt"
	"net/http"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"go.uber.org/zap"
)

// treePageSize is the largest page the tree endpoint serves
const treePageSize = 100

// Client handles GitLab API operations
type Client struct {
	baseURL      string
	defaultToken string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewClient creates a new GitLab client. defaultToken is used when a call
// does not supply its own token.
func NewClient(baseURL, defaultToken string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("GitLab base URL is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:      baseURL,
		defaultToken: defaultToken,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// GetRepository retrieves visibility and default branch of a project.
// Internal projects count as private: they are not readable without a token.
func (c *Client) GetRepository(
	ctx context.Context,
	ref domain.RepositoryReference,
	token string,
) (*domain.RepositoryMetadata, error) {
	projectPath := ProjectPath(ref)
	c.logger.Debug("Starting GetRepository", zap.String("project_path", projectPath))

	client, err := c.apiClient(token)
	if err != nil {
		return nil, classifier.ClassifyNetwork(err)
	}

	project, resp, err := client.Projects.GetProject(projectPath, nil, gitlab.WithContext(ctx))
	if err != nil {
		resErr := classifyError(resp, err)
		c.logger.Debug("Failed to get project from API",
			zap.String("project_path", projectPath),
			zap.Int("status", resErr.Status),
			zap.String("kind", string(resErr.Kind)),
			zap.Error(err))
		return nil, resErr
	}

	metadata := &domain.RepositoryMetadata{
		IsPrivate:     project.Visibility != gitlab.PublicVisibility,
		DefaultBranch: project.DefaultBranch,
	}

	c.logger.Debug("Completed GetRepository",
		zap.String("project_path", projectPath),
		zap.String("visibility", string(project.Visibility)),
		zap.String("default_branch", metadata.DefaultBranch))

	return metadata, nil
}

// ListBranches returns the first page of branch names of a project
func (c *Client) ListBranches(
	ctx context.Context,
	ref domain.RepositoryReference,
	token string,
	perPage int,
) ([]string, error) {
	projectPath := ProjectPath(ref)
	c.logger.Debug("Starting ListBranches",
		zap.String("project_path", projectPath),
		zap.Int("per_page", perPage))

	client, err := c.apiClient(token)
	if err != nil {
		return nil, classifier.ClassifyNetwork(err)
	}

	branches, resp, err := client.Branches.ListBranches(projectPath, &gitlab.ListBranchesOptions{
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: perPage,
		},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, classifyError(resp, err)
	}

	names := make([]string, 0, len(branches))
	for _, branch := range branches {
		if branch.Name != "" {
			names = append(names, branch.Name)
		}
	}

	c.logger.Debug("Completed ListBranches",
		zap.String("project_path", projectPath),
		zap.Int("branch_count", len(names)))

	return names, nil
}

// ListFiles walks the repository tree at ref page by page and returns the
// paths of all files
func (c *Client) ListFiles(
	ctx context.Context,
	repo domain.RepositoryReference,
	token string,
	ref string,
) ([]string, error) {
	projectPath := ProjectPath(repo)
	c.logger.Debug("Starting ListFiles",
		zap.String("project_path", projectPath),
		zap.String("ref", ref))

	client, err := c.apiClient(token)
	if err != nil {
		return nil, classifier.ClassifyNetwork(err)
	}

	var allFiles []string
	page := 1

	for {
		c.logger.Debug("Fetching repository tree page",
			zap.String("project_path", projectPath),
			zap.Int("page", page),
			zap.Int("per_page", treePageSize))

		tree, resp, err := client.Repositories.ListTree(projectPath, &gitlab.ListTreeOptions{
			Recursive: gitlab.Ptr(true),
			Ref:       gitlab.Ptr(ref),
			ListOptions: gitlab.ListOptions{
				Page:    page,
				PerPage: treePageSize,
			},
		}, gitlab.WithContext(ctx))
		if err != nil {
			return nil, classifyError(resp, err)
		}

		for _, item := range tree {
			if item.Type == "blob" { // blob = file, tree = directory
				allFiles = append(allFiles, item.Path)
			}
		}

		// a short page is the last one
		if len(tree) < treePageSize {
			break
		}
		page++
	}

	c.logger.Debug("Completed ListFiles",
		zap.String("project_path", projectPath),
		zap.Int("file_count", len(allFiles)),
		zap.Int("pages", page))

	return allFiles, nil
}

// GetFileContent returns the raw content of one file at ref
func (c *Client) GetFileContent(
	ctx context.Context,
	repo domain.RepositoryReference,
	token string,
	ref string,
	path string,
) ([]byte, error) {
	projectPath := ProjectPath(repo)
	c.logger.Debug("Starting GetFileContent",
		zap.String("project_path", projectPath),
		zap.String("file_path", path),
		zap.String("ref", ref))

	client, err := c.apiClient(token)
	if err != nil {
		return nil, classifier.ClassifyNetwork(err)
	}

	content, resp, err := client.RepositoryFiles.GetRawFile(projectPath, path, &gitlab.GetRawFileOptions{
		Ref: gitlab.Ptr(ref),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, classifyError(resp, err)
	}

	c.logger.Debug("Completed GetFileContent",
		zap.String("project_path", projectPath),
		zap.String("file_path", path),
		zap.Int("content_size_bytes", len(content)))

	return content, nil
}

// ProjectPath returns the namespaced path GitLab accepts as a project id
func ProjectPath(ref domain.RepositoryReference) string {
	return ref.Owner + "/" + ref.Repo
}

func (c *Client) apiClient(token string) (*gitlab.Client, error) {
	if token == "" {
		token = c.defaultToken
	}

	// Retries are disabled: a slow provider must surface as unavailable
	// within the resolution timeout instead of backing off.
	client, err := gitlab.NewClient(token,
		gitlab.WithBaseURL(c.baseURL),
		gitlab.WithHTTPClient(c.httpClient),
		gitlab.WithCustomRetryMax(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}
	return client, nil
}

func classifyError(resp *gitlab.Response, err error) *domain.ResolutionError {
	if resp == nil || resp.Response == nil {
		return classifier.ClassifyNetwork(err)
	}

	var body string
	var errResp *gitlab.ErrorResponse
	if errors.As(err, &errResp) {
		body = string(errResp.Body)
	}

	resErr := classifier.Classify(resp.StatusCode, body)
	resErr.Err = err
	return resErr
}
