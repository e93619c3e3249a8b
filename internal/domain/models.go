package domain

import "encoding/json"

type RepositoryReference struct {
	Host  string `json:"host"`  // "github.com", lower-cased
	Owner string `json:"owner"` // "acme"
	Repo  string `json:"repo"`  // "widgets", without ".git"
}

type RepositoryMetadata struct {
	IsPrivate     bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
}

type RepositoryInfo struct {
	IsPrivate bool     `json:"is_private"`
	Owner     string   `json:"owner"`
	Repo      string   `json:"repo"`
	Branches  []string `json:"branches"` // default branch first, unique
}

// DefaultBranch returns the first branch, which is the provider's default branch.
func (i *RepositoryInfo) DefaultBranch() string {
	if i == nil || len(i.Branches) == 0 {
		return ""
	}
	return i.Branches[0]
}

type DeployRequest struct {
	UserID       int    `json:"user_id"`
	ServiceName  string `json:"name"`
	DomainPrefix string `json:"domain"`
	GitRepoURL   string `json:"git_repo"`
	GitBranch    string `json:"git_branch"`
}

// BuildRequest triggers a pipeline build through the generic deploy endpoint.
type BuildRequest struct {
	Prefix            string `json:"prefix"`
	GitRepo           string `json:"git_repo"`
	Branch            string `json:"branch"`
	UseRepoDockerfile bool   `json:"use_repo_dockerfile"`
	FrontendStack     string `json:"frontend_stack,omitempty"`
}

// DeployResult is the backend acknowledgement. Body is kept opaque.
type DeployResult struct {
	StatusCode int             `json:"status_code"`
	URL        string          `json:"url"`
	Body       json.RawMessage `json:"body,omitempty"`
}

type ServiceInfo struct {
	ServiceID   int    `json:"service_id"`
	UserID      int    `json:"user_id"`
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	GitRepo     string `json:"git_repo"`
	CreatedDate string `json:"created_date"`
	UpdatedDate string `json:"updated_date"`
}

type DeploymentRecord struct {
	DeployID      int    `json:"deploy_id"`
	ServiceID     int    `json:"service_id"`
	GitBranch     string `json:"git_branch"`
	CommitID      string `json:"commit_id"`
	CommitMessage string `json:"commit_message"`
	Status        string `json:"status"` // "success", "failed", "running", "unknown"
	CreatedDate   string `json:"created_date"`
	UpdatedDate   string `json:"updated_date"`
}

type LatestDeploy struct {
	DeployID int `json:"deploy_id"`
}

// ServiceDeployment pairs a service with its most recent deployment, if any.
type ServiceDeployment struct {
	Service ServiceInfo       `json:"service"`
	Latest  *DeploymentRecord `json:"latest,omitempty"`
	Err     string            `json:"error,omitempty"`
}

// DetectedProject is a group of dependency files sharing a language and directory.
type DetectedProject struct {
	Path     string   `json:"path"` // "" for the repository root
	Language string   `json:"language"`
	Files    []string `json:"files"`
}

// StackDetection describes how a repository can be built.
type StackDetection struct {
	Owner         string            `json:"owner"`
	Repo          string            `json:"repo"`
	Ref           string            `json:"ref"`
	HasDockerfile bool              `json:"has_dockerfile"` // Dockerfile at the repository root
	Dockerfiles   []string          `json:"dockerfiles"`
	BackendStack  string            `json:"backend_stack,omitempty"`  // "go", "python", "java", "nodejs"
	FrontendStack string            `json:"frontend_stack,omitempty"` // "react-vite", "nextjs", "vue-vite", ...
	Projects      []DetectedProject `json:"projects"`
}
