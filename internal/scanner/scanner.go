package scanner

import (
	"context"
	"deploy-wizard-cli/internal/domain"
	"deploy-wizard-cli/internal/parser"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// defaultRef makes both providers read the default branch
const defaultRef = "HEAD"

// Route sends repositories whose host contains Host to Browser.
type Route struct {
	Host    string
	Browser domain.RepositoryBrowser
}

// Scanner finds dependency files in repositories and detects how they build
type Scanner struct {
	routes []Route
	logger *zap.Logger
}

// NewScanner creates a new repository scanner. The first route also serves
// hosts that match no route.
func NewScanner(routes []Route, logger *zap.Logger) (*Scanner, error) {
	if len(routes) == 0 {
		return nil, errors.New("at least one repository browser route is required")
	}
	return &Scanner{
		routes: routes,
		logger: logger,
	}, nil
}

// Detect lists the repository tree at ref and reports its Dockerfiles,
// projects and build stacks. An empty ref means the default branch.
func (s *Scanner) Detect(ctx context.Context, repoURL, token, ref string) (*domain.StackDetection, error) {
	repo, err := parser.Parse(repoURL)
	if err != nil {
		return nil, err
	}
	if ref == "" {
		ref = defaultRef
	}

	s.logger.Info("Detecting build stack",
		zap.String("repo_url", repoURL),
		zap.String("ref", ref))

	browser := s.browserFor(repo.Host)

	// Get all files in the repository
	files, err := browser.ListFiles(ctx, repo, token, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to list files of %s/%s: %w", repo.Owner, repo.Repo, err)
	}

	detection := &domain.StackDetection{
		Owner:       repo.Owner,
		Repo:        repo.Repo,
		Ref:         ref,
		Dockerfiles: []string{},
		Projects:    []domain.DetectedProject{},
	}
	for _, file := range files {
		if IsDockerfile(file) {
			detection.Dockerfiles = append(detection.Dockerfiles, file)
			if file == path.Base(file) {
				detection.HasDockerfile = true
			}
		}
	}

	// Group dependency files by project (language + path)
	projectGroups := s.groupDependencyFilesByProject(s.filterDependencyFiles(files))

	for _, group := range projectGroups {
		detection.Projects = append(detection.Projects, domain.DetectedProject{
			Path:     group.path,
			Language: group.language,
			Files:    group.files,
		})

		backend, frontend := s.stacksOf(ctx, browser, repo, token, ref, group)
		if detection.BackendStack == "" {
			detection.BackendStack = backend
		}
		if detection.FrontendStack == "" {
			detection.FrontendStack = frontend
		}
	}

	s.logger.Info("Detected build stack",
		zap.String("repo_url", repoURL),
		zap.Bool("dockerfile", detection.HasDockerfile),
		zap.String("backend_stack", detection.BackendStack),
		zap.String("frontend_stack", detection.FrontendStack),
		zap.Int("project_count", len(detection.Projects)))

	return detection, nil
}

func (s *Scanner) browserFor(host string) domain.RepositoryBrowser {
	for _, route := range s.routes {
		if route.Host != "" && strings.Contains(host, route.Host) {
			return route.Browser
		}
	}
	return s.routes[0].Browser
}

// filterDependencyFiles filters the file list to only include dependency files
func (s *Scanner) filterDependencyFiles(files []string) []string {
	var dependencyFiles []string
	supportedTypes := SupportedFileTypes()

	supportedMap := make(map[string]bool)
	for _, fileType := range supportedTypes {
		supportedMap[fileType] = true
	}

	for _, file := range files {
		if supportedMap[path.Base(file)] {
			dependencyFiles = append(dependencyFiles, file)
		}
	}

	return dependencyFiles
}

// dependencyFileGroup represents a group of dependency files that belong to the same project
type dependencyFileGroup struct {
	language string
	path     string
	files    []string
}

// groupDependencyFilesByProject groups dependency files by their project
// (language + path). The root project comes first, the rest by path.
func (s *Scanner) groupDependencyFilesByProject(dependencyFiles []string) []dependencyFileGroup {
	projectMap := make(map[string]*dependencyFileGroup)

	for _, file := range dependencyFiles {
		language := DetectLanguageFromFile(file)
		projectPath := ExtractProjectPath(file)
		groupKey := fmt.Sprintf("%s:%s", language, projectPath)

		if group, exists := projectMap[groupKey]; exists {
			group.files = append(group.files, file)
		} else {
			projectMap[groupKey] = &dependencyFileGroup{
				language: language,
				path:     projectPath,
				files:    []string{file},
			}
		}
	}

	// Convert map to slice
	groups := make([]dependencyFileGroup, 0, len(projectMap))
	for _, group := range projectMap {
		groups = append(groups, *group)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].path != groups[j].path {
			return groups[i].path < groups[j].path
		}
		return groups[i].language < groups[j].language
	})

	return groups
}

// stacksOf works out the backend and frontend stack of one project. Node
// projects need their package.json; a read failure leaves both stacks empty.
func (s *Scanner) stacksOf(
	ctx context.Context,
	browser domain.RepositoryBrowser,
	repo domain.RepositoryReference,
	token, ref string,
	group dependencyFileGroup,
) (string, string) {
	switch group.language {
	case "go", "python", "java":
		return group.language, ""
	case "nodejs":
	default:
		return "", ""
	}

	manifest := path.Join(group.path, "package.json")
	if !slices.Contains(group.files, manifest) {
		return "", ""
	}
	content, err := browser.GetFileContent(ctx, repo, token, ref, manifest)
	if err != nil {
		s.logger.Error("Failed to get file content",
			zap.String("file", manifest),
			zap.Error(err))
		return "", ""
	}

	backend, frontend, err := StacksFromPackageJSON(content)
	if err != nil {
		s.logger.Error("Failed to parse package.json",
			zap.String("file", manifest),
			zap.Error(err))
		return "", ""
	}
	return backend, frontend
}

// StacksFromPackageJSON reads the dependencies of a package.json and returns
// the Node backend stack ("nodejs" for server frameworks) and frontend stack.
func StacksFromPackageJSON(content []byte) (string, string, error) {
	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(content, &manifest); err != nil {
		return "", "", fmt.Errorf("failed to decode package.json: %w", err)
	}

	has := func(name string) bool {
		_, inDeps := manifest.Dependencies[name]
		_, inDevDeps := manifest.DevDependencies[name]
		return inDeps || inDevDeps
	}

	var backend string
	for _, framework := range []string{"express", "fastify", "koa", "@nestjs/core", "hono"} {
		if has(framework) {
			backend = "nodejs"
			break
		}
	}

	var frontend string
	switch {
	case has("next"):
		frontend = "nextjs"
	case has("vite") && has("react"):
		frontend = "react-vite"
	case has("vite") && has("vue"):
		frontend = "vue-vite"
	case has("react-scripts"):
		frontend = "react-cra"
	case has("@angular/core"):
		frontend = "angular"
	case has("svelte"):
		frontend = "svelte"
	case has("react"):
		frontend = "react"
	case has("vue"):
		frontend = "vue"
	}

	return backend, frontend, nil
}

// IsDockerfile reports whether a path names a Dockerfile, e.g. "Dockerfile"
// or "deploy/Dockerfile.prod"
func IsDockerfile(filePath string) bool {
	name := path.Base(filePath)
	return name == "Dockerfile" || strings.HasPrefix(name, "Dockerfile.")
}

// DetectLanguageFromFile detects the programming language from a dependency file
func DetectLanguageFromFile(filePath string) string {
	fileName := strings.ToLower(path.Base(filePath))

	switch fileName {
	case "go.mod", "go.sum":
		return "go"
	case "package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml":
		return "nodejs"
	case "pom.xml", "build.gradle", "build.gradle.kts", "gradle.lockfile":
		return "java"
	case "requirements.txt", "pipfile", "poetry.lock", "uv.lock", "setup.py", "pyproject.toml":
		return "python"
	default:
		return "unknown"
	}
}

// ExtractProjectPath extracts the project path from a file path
func ExtractProjectPath(filePath string) string {
	// Remove the dependency file name to get the directory path
	dir := path.Dir(filePath)

	// If it's in the root directory, return empty string
	if dir == "." || dir == "/" {
		return ""
	}

	return dir
}

// SupportedFileTypes returns the file types we can scan for
func SupportedFileTypes() []string {
	return []string{
		"go.mod", "go.sum",
		"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
		"pom.xml", "build.gradle", "build.gradle.kts", "gradle.lockfile",
		"requirements.txt", "Pipfile", "poetry.lock", "uv.lock", "setup.py", "pyproject.toml",
	}
}
