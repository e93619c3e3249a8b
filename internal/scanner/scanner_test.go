package scanner_test

import (
	"context"
	"deploy-wizard-cli/internal/classifier"
	"deploy-wizard-cli/internal/domain"
	"deploy-wizard-cli/internal/scanner"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var widgets = domain.RepositoryReference{Host: "github.com", Owner: "acme", Repo: "widgets"}

// MockBrowser is a mock implementation of the RepositoryBrowser interface
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) ListFiles(
	ctx context.Context,
	repo domain.RepositoryReference,
	token, ref string,
) ([]string, error) {
	args := m.Called(ctx, repo, token, ref)
	files, _ := args.Get(0).([]string)
	return files, args.Error(1)
}

func (m *MockBrowser) GetFileContent(
	ctx context.Context,
	repo domain.RepositoryReference,
	token, ref, path string,
) ([]byte, error) {
	args := m.Called(ctx, repo, token, ref, path)
	content, _ := args.Get(0).([]byte)
	return content, args.Error(1)
}

func newScanner(t *testing.T, github, gitlab domain.RepositoryBrowser) *scanner.Scanner {
	t.Helper()
	s, err := scanner.NewScanner([]scanner.Route{
		{Host: "github.com", Browser: github},
		{Host: "gitlab.com", Browser: gitlab},
	}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestNewScanner(t *testing.T) {
	t.Parallel()

	s, err := scanner.NewScanner(nil, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, s)
}

func TestDetect_MonorepoWithDockerfile(t *testing.T) {
	t.Parallel()
	browser := &MockBrowser{}
	s := newScanner(t, browser, &MockBrowser{})
	ctx := context.Background()

	files := []string{
		"Dockerfile",
		"go.mod",
		"go.sum",
		"web/package.json",
		"web/yarn.lock",
		"web/src/main.tsx",
		"deploy/Dockerfile.worker",
		"README.md", // Should be filtered out
	}
	browser.On("ListFiles", ctx, widgets, "pat", "HEAD").Return(files, nil)
	browser.On("GetFileContent", ctx, widgets, "pat", "HEAD", "web/package.json").
		Return([]byte(`{"dependencies":{"react":"^18.3.0"},"devDependencies":{"vite":"^5.0.0"}}`), nil)

	detection, err := s.Detect(ctx, "https://github.com/acme/widgets.git", "pat", "")

	require.NoError(t, err)
	assert.Equal(t, "acme", detection.Owner)
	assert.Equal(t, "widgets", detection.Repo)
	assert.Equal(t, "HEAD", detection.Ref)
	assert.True(t, detection.HasDockerfile)
	assert.Equal(t, []string{"Dockerfile", "deploy/Dockerfile.worker"}, detection.Dockerfiles)
	assert.Equal(t, "go", detection.BackendStack)
	assert.Equal(t, "react-vite", detection.FrontendStack)

	require.Len(t, detection.Projects, 2)
	assert.Equal(t, domain.DetectedProject{Path: "", Language: "go", Files: []string{"go.mod", "go.sum"}},
		detection.Projects[0])
	assert.Equal(t, domain.DetectedProject{
		Path:     "web",
		Language: "nodejs",
		Files:    []string{"web/package.json", "web/yarn.lock"},
	}, detection.Projects[1])

	browser.AssertExpectations(t)
}

func TestDetect_RoutesGitLabAndUsesRef(t *testing.T) {
	t.Parallel()
	github := &MockBrowser{}
	gitlab := &MockBrowser{}
	s := newScanner(t, github, gitlab)
	ctx := context.Background()

	ref := domain.RepositoryReference{Host: "gitlab.com", Owner: "acme", Repo: "api"}
	gitlab.On("ListFiles", ctx, ref, "", "develop").Return([]string{"requirements.txt", "app/main.py"}, nil)

	detection, err := s.Detect(ctx, "https://gitlab.com/acme/api", "", "develop")

	require.NoError(t, err)
	assert.False(t, detection.HasDockerfile)
	assert.Empty(t, detection.Dockerfiles)
	assert.Equal(t, "python", detection.BackendStack)
	assert.Empty(t, detection.FrontendStack)
	gitlab.AssertExpectations(t)
	github.AssertNotCalled(t, "ListFiles", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDetect_PackageJSONReadFailureIsSkipped(t *testing.T) {
	t.Parallel()
	browser := &MockBrowser{}
	s := newScanner(t, browser, &MockBrowser{})
	ctx := context.Background()

	browser.On("ListFiles", ctx, widgets, "", "HEAD").Return([]string{"package.json"}, nil)
	browser.On("GetFileContent", ctx, widgets, "", "HEAD", "package.json").
		Return(nil, errors.New("connection reset"))

	detection, err := s.Detect(ctx, "https://github.com/acme/widgets", "", "")

	require.NoError(t, err)
	assert.Empty(t, detection.BackendStack)
	assert.Empty(t, detection.FrontendStack)
	assert.Len(t, detection.Projects, 1)
}

func TestDetect_Errors(t *testing.T) {
	t.Parallel()

	t.Run("malformed url", func(t *testing.T) {
		t.Parallel()
		browser := &MockBrowser{}
		s := newScanner(t, browser, &MockBrowser{})

		_, err := s.Detect(context.Background(), "not a url", "", "")

		require.Error(t, err)
		assert.Equal(t, domain.KindMalformedURL, domain.ResolutionKindOf(err))
		browser.AssertNotCalled(t, "ListFiles", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("listing fails", func(t *testing.T) {
		t.Parallel()
		browser := &MockBrowser{}
		s := newScanner(t, browser, &MockBrowser{})
		browser.On("ListFiles", mock.Anything, widgets, "", "HEAD").
			Return(nil, classifier.Classify(404, `{"message":"Not Found"}`))

		_, err := s.Detect(context.Background(), "https://github.com/acme/widgets", "", "")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to list files of acme/widgets")
		assert.Equal(t, domain.KindNotFound, domain.ResolutionKindOf(err))
	})
}

func TestStacksFromPackageJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		content          string
		expectedBackend  string
		expectedFrontend string
	}{
		{"next", `{"dependencies":{"next":"14","react":"18"}}`, "", "nextjs"},
		{"react vite", `{"dependencies":{"react":"18"},"devDependencies":{"vite":"5"}}`, "", "react-vite"},
		{"vue vite", `{"dependencies":{"vue":"3","vite":"5"}}`, "", "vue-vite"},
		{"create react app", `{"dependencies":{"react":"18","react-scripts":"5"}}`, "", "react-cra"},
		{"express api", `{"dependencies":{"express":"4"}}`, "nodejs", ""},
		{"nest with react", `{"dependencies":{"@nestjs/core":"10","react":"18"}}`, "nodejs", "react"},
		{"no dependencies", `{"name":"tooling"}`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			backend, frontend, err := scanner.StacksFromPackageJSON([]byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.expectedBackend, backend)
			assert.Equal(t, tt.expectedFrontend, frontend)
		})
	}

	_, _, err := scanner.StacksFromPackageJSON([]byte(`{`))
	require.Error(t, err)
}

func TestIsDockerfile(t *testing.T) {
	t.Parallel()

	assert.True(t, scanner.IsDockerfile("Dockerfile"))
	assert.True(t, scanner.IsDockerfile("deploy/Dockerfile.prod"))
	assert.False(t, scanner.IsDockerfile("docs/Dockerfile.md/README"))
	assert.False(t, scanner.IsDockerfile("dockerfile-generator.go"))
}

func TestSupportedFileTypes(t *testing.T) {
	t.Parallel()
	fileTypes := scanner.SupportedFileTypes()

	expectedTypes := []string{
		"go.mod", "go.sum",
		"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
		"pom.xml", "build.gradle", "build.gradle.kts", "gradle.lockfile",
		"requirements.txt", "Pipfile", "poetry.lock", "uv.lock", "setup.py", "pyproject.toml",
	}

	assert.ElementsMatch(t, expectedTypes, fileTypes)
}

func TestDetectLanguageFromFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		fileName string
		expected string
	}{
		{"go.mod", "go"},
		{"GO.MOD", "go"}, // Test case insensitivity
		{"web/package.json", "nodejs"},
		{"pnpm-lock.yaml", "nodejs"},
		{"pom.xml", "java"},
		{"build.gradle.kts", "java"},
		{"Pipfile", "python"},
		{"pyproject.toml", "python"},
		{"README.md", "unknown"},
	}

	for _, test := range tests {
		t.Run(test.fileName, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, test.expected, scanner.DetectLanguageFromFile(test.fileName))
		})
	}
}

func TestExtractProjectPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filePath string
		expected string
	}{
		{"go.mod", ""},
		{"backend/go.mod", "backend"},
		{"services/api/package.json", "services/api"},
	}

	for _, test := range tests {
		t.Run(test.filePath, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, test.expected, scanner.ExtractProjectPath(test.filePath))
		})
	}
}
