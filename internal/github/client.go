package github

import (
	"context"
	"deploy-wizard-cli/internal/classifier"
	"deploy-wizard-cli/internal/domain"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// tokenType makes the credential header read "Authorization: token <PAT>".
const tokenType = "token"

// Client handles GitHub API operations
type Client struct {
	apiURL       *url.URL
	defaultToken string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewClient creates a new GitHub client. apiURL is the REST root,
// e.g. https://api.github.com/ or https://ghe.example.com/api/v3/.
// defaultToken is used when a call does not supply its own token.
func NewClient(apiURL, defaultToken string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	parsed, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GitHub API URL %s: %w", apiURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("GitHub API URL must be absolute: %s", apiURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		apiURL:       parsed,
		defaultToken: defaultToken,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// GetRepository retrieves visibility and default branch of a repository
func (c *Client) GetRepository(
	ctx context.Context,
	ref domain.RepositoryReference,
	token string,
) (*domain.RepositoryMetadata, error) {
	c.logger.Debug("Starting GetRepository",
		zap.String("owner", ref.Owner),
		zap.String("repo", ref.Repo),
		zap.Bool("with_token", c.effectiveToken(token) != ""))

	repo, resp, err := c.apiClient(ctx, token).Repositories.Get(ctx, ref.Owner, ref.Repo)
	if err != nil {
		resErr := classifyError(resp, err)
		c.logger.Debug("Failed to get repository from API",
			zap.String("owner", ref.Owner),
			zap.String("repo", ref.Repo),
			zap.Int("status", resErr.Status),
			zap.String("kind", string(resErr.Kind)),
			zap.Error(err))
		return nil, resErr
	}

	metadata := &domain.RepositoryMetadata{
		IsPrivate:     repo.GetPrivate(),
		DefaultBranch: repo.GetDefaultBranch(),
	}

	c.logger.Debug("Completed GetRepository",
		zap.String("owner", ref.Owner),
		zap.String("repo", ref.Repo),
		zap.Bool("private", metadata.IsPrivate),
		zap.String("default_branch", metadata.DefaultBranch))

	return metadata, nil
}

// ListBranches returns the first page of branch names
func (c *Client) ListBranches(
	ctx context.Context,
	ref domain.RepositoryReference,
	token string,
	perPage int,
) ([]string, error) {
	c.logger.Debug("Starting ListBranches",
		zap.String("owner", ref.Owner),
		zap.String("repo", ref.Repo),
		zap.Int("per_page", perPage))

	branches, resp, err := c.apiClient(ctx, token).Repositories.ListBranches(ctx, ref.Owner, ref.Repo,
		&gh.BranchListOptions{
			ListOptions: gh.ListOptions{PerPage: perPage},
		})
	if err != nil {
		return nil, classifyError(resp, err)
	}

	names := make([]string, 0, len(branches))
	for _, branch := range branches {
		if name := branch.GetName(); name != "" {
			names = append(names, name)
		}
	}

	c.logger.Debug("Completed ListBranches",
		zap.String("owner", ref.Owner),
		zap.String("repo", ref.Repo),
		zap.Int("branch_count", len(names)))

	return names, nil
}

// ListFiles returns the paths of all files in the tree at ref, which may be a
// branch name or HEAD.
func (c *Client) ListFiles(
	ctx context.Context,
	repo domain.RepositoryReference,
	token string,
	ref string,
) ([]string, error) {
	c.logger.Debug("Starting ListFiles",
		zap.String("owner", repo.Owner),
		zap.String("repo", repo.Repo),
		zap.String("ref", ref))

	tree, resp, err := c.apiClient(ctx, token).Git.GetTree(ctx, repo.Owner, repo.Repo, ref, true)
	if err != nil {
		return nil, classifyError(resp, err)
	}
	if tree.GetTruncated() {
		c.logger.Warn("Repository tree truncated by GitHub",
			zap.String("owner", repo.Owner),
			zap.String("repo", repo.Repo),
			zap.Int("entry_count", len(tree.Entries)))
	}

	files := make([]string, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		if entry.GetType() == "blob" { // blob = file, tree = directory
			files = append(files, entry.GetPath())
		}
	}

	c.logger.Debug("Completed ListFiles",
		zap.String("owner", repo.Owner),
		zap.String("repo", repo.Repo),
		zap.Int("file_count", len(files)))

	return files, nil
}

// GetFileContent returns the decoded content of one file at ref
func (c *Client) GetFileContent(
	ctx context.Context,
	repo domain.RepositoryReference,
	token string,
	ref string,
	path string,
) ([]byte, error) {
	c.logger.Debug("Starting GetFileContent",
		zap.String("owner", repo.Owner),
		zap.String("repo", repo.Repo),
		zap.String("file_path", path))

	file, _, resp, err := c.apiClient(ctx, token).Repositories.GetContents(ctx, repo.Owner, repo.Repo, path,
		&gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, classifyError(resp, err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	c.logger.Debug("Completed GetFileContent",
		zap.String("file_path", path),
		zap.Int("content_size_bytes", len(content)))

	return []byte(content), nil
}

func (c *Client) effectiveToken(token string) string {
	if token != "" {
		return token
	}
	return c.defaultToken
}

// apiClient builds a go-github client for one call. The token differs per
// wizard input, so clients are not cached.
func (c *Client) apiClient(ctx context.Context, token string) *gh.Client {
	httpClient := c.httpClient
	if t := c.effectiveToken(token); t != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: t, TokenType: tokenType},
		))
	}

	client := gh.NewClient(httpClient)
	client.BaseURL = c.apiURL
	return client
}

// classifyError turns a go-github failure into a resolution error. A nil
// response means the request never got an answer.
func classifyError(resp *gh.Response, err error) *domain.ResolutionError {
	if resp == nil || resp.Response == nil {
		return classifier.ClassifyNetwork(err)
	}

	var body string
	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) {
		if encoded, marshalErr := json.Marshal(errResp); marshalErr == nil {
			body = string(encoded)
		}
	}

	resErr := classifier.Classify(resp.StatusCode, body)
	resErr.Err = err
	return resErr
}
