package domain

import "context"

type RepositoryInfoResolver interface {
	// resolves visibility and branches of the repository behind a Git URL;
	// failures are *ResolutionError
	Resolve(ctx context.Context, repoURL, token string) (*RepositoryInfo, error)
}

type HostingProvider interface {
	// returns visibility and default branch; failures are *ResolutionError
	GetRepository(ctx context.Context, ref RepositoryReference, token string) (*RepositoryMetadata, error)
	// returns branch names in provider order, at most perPage entries
	ListBranches(ctx context.Context, ref RepositoryReference, token string, perPage int) ([]string, error)
}

type RepositoryBrowser interface {
	// returns the paths of all files in the tree at ref
	ListFiles(ctx context.Context, repo RepositoryReference, token, ref string) ([]string, error)
	// returns the content of one file at ref
	GetFileContent(ctx context.Context, repo RepositoryReference, token, ref, path string) ([]byte, error)
}

type StackDetector interface {
	// inspects the repository behind a Git URL and reports how it can be built
	Detect(ctx context.Context, repoURL, token, ref string) (*StackDetection, error)
}

type DeploySubmitter interface {
	// submits a deployment request to the service creation endpoint
	AutoDeploy(ctx context.Context, req *DeployRequest) (*DeployResult, error)
	// submits a generic deploy payload with the trailing-slash fallback
	PostDeploy(ctx context.Context, payload any) (*DeployResult, error)
}

type DeploymentReader interface {
	GetService(ctx context.Context, serviceID int) (*ServiceInfo, error)
	ListServicesByUser(ctx context.Context, userID int) ([]*ServiceInfo, error)
	// returns the id of the latest deployment of a service
	GetLatestDeploy(ctx context.Context, serviceID int) (*LatestDeploy, error)
	// returns the deployment history of a service
	ListDeployments(ctx context.Context, serviceID int) ([]*DeploymentRecord, error)
}

type ReportGenerator interface {
	// writes deployment history as a table
	GenerateTable(ctx context.Context, records []*DeploymentRecord) error
	// writes deployment history as CSV
	GenerateCSV(ctx context.Context, records []*DeploymentRecord) error
	// writes deployment history as JSON
	GenerateJSON(ctx context.Context, records []*DeploymentRecord) error
}
