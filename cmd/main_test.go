package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend serves the GitHub API under /gh and the deploy backend under /api.
type fakeBackend struct {
	server *httptest.Server

	mu          sync.Mutex
	autoDeploys []map[string]any
	builds      []string
	buildBodies []map[string]any
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	f := &fakeBackend{}

	mux := http.NewServeMux()
	mux.HandleFunc("/gh/repos/acme/widgets", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, `{"private":false,"default_branch":"main"}`)
	})
	mux.HandleFunc("/gh/repos/acme/widgets/branches", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, `[{"name":"develop"},{"name":"main"}]`)
	})
	mux.HandleFunc("/gh/repos/acme/widgets/git/trees/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, `{"sha":"abc123","truncated":false,"tree":[
			{"path":"Dockerfile","type":"blob"},
			{"path":"go.mod","type":"blob"},
			{"path":"web","type":"tree"},
			{"path":"web/package.json","type":"blob"}
		]}`)
	})
	mux.HandleFunc("/gh/repos/acme/widgets/contents/web/package.json", func(w http.ResponseWriter, _ *http.Request) {
		// {"dependencies":{"react":"^18.3.0"},"devDependencies":{"vite":"^5.4.0"}}
		writeJSONResponse(w, http.StatusOK, `{"type":"file","encoding":"base64","path":"web/package.json",`+
			`"content":"eyJkZXBlbmRlbmNpZXMiOnsicmVhY3QiOiJeMTguMy4wIn0sImRldkRlcGVuZGVuY2llcyI6eyJ2aXRlIjoiXjUuNC4wIn19"}`)
	})
	mux.HandleFunc("/gh/repos/acme/secret", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token s3cr3t" {
			writeJSONResponse(w, http.StatusNotFound, `{"message":"Not Found"}`)
			return
		}
		writeJSONResponse(w, http.StatusOK, `{"private":true,"default_branch":"main"}`)
	})
	mux.HandleFunc("/gh/repos/acme/secret/branches", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, `[{"name":"main"}]`)
	})

	mux.HandleFunc("/api/service/auto_deploy", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, `{"detail":"bad json"}`)
			return
		}
		f.mu.Lock()
		f.autoDeploys = append(f.autoDeploys, body)
		f.mu.Unlock()
		writeJSONResponse(w, http.StatusCreated, `{"service_id":9}`)
	})
	mux.HandleFunc("/api/deploy", func(w http.ResponseWriter, r *http.Request) {
		f.record(r.URL.Path)
		writeJSONResponse(w, http.StatusMethodNotAllowed, `{"detail":"Method Not Allowed"}`)
	})
	mux.HandleFunc("/api/deploy/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r.URL.Path)
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			f.mu.Lock()
			f.buildBodies = append(f.buildBodies, body)
			f.mu.Unlock()
		}
		writeJSONResponse(w, http.StatusOK, `{"queue_id":7}`)
	})
	mux.HandleFunc("/api/deploy/service/5", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, `[
			{"deploy_id":11,"service_id":5,"git_branch":"main","commit_id":"abcdef123456","status":"SUCCESS"},
			{"deploy_id":12,"service_id":5,"git_branch":"main","commit_id":"123456abcdef","status":null}
		]`)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBackend) record(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds = append(f.builds, path)
}

func writeJSONResponse(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// writeConfig points every endpoint at the fake backend
func writeConfig(t *testing.T, f *fakeBackend) string {
	t.Helper()

	content := fmt.Sprintf(`
backend:
  base_url: %q
  user_id: 42
github:
  api_url: %q
gitlab:
  base_url: %q
resolution:
  rate_per_second: 0
logging:
  level: error
`, f.server.URL+"/api", f.server.URL+"/gh/", f.server.URL+"/gl")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// clearEnv blanks environment variables that would override the test config
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DEPLOY_API_BASE", "DEPLOY_USER_ID", "GITHUB_API_URL", "GITHUB_TOKEN",
		"GITLAB_BASE_URL", "GITLAB_TOKEN", "HTTP_TIMEOUT_SECONDS", "LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	assert.Equal(t, "deploy-wizard", cmd.Use)

	for _, name := range []string{"resolve", "deploy", "detect", "build", "history", "wizard"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	for _, flag := range []string{"config", "debug", "api-base", "user-id", "timeout"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}
	assert.Equal(t, "c", cmd.PersistentFlags().Lookup("config").Shorthand)
	assert.Equal(t, "d", cmd.PersistentFlags().Lookup("debug").Shorthand)
}

//nolint:paralleltest // Cannot use t.Parallel() with t.Setenv()
func TestResolveCmd_PublicRepository(t *testing.T) {
	clearEnv(t)
	backend := newFakeBackend(t)
	configPath := writeConfig(t, backend)

	stdout, _, err := execute(t, "resolve", "https://github.com/acme/widgets", "--config", configPath)
	require.NoError(t, err)

	var result struct {
		IsPrivate     bool     `json:"is_private"`
		Owner         string   `json:"owner"`
		Repo          string   `json:"repo"`
		Branches      []string `json:"branches"`
		DefaultBranch string   `json:"default_branch"`
		TokenRequired bool     `json:"token_required"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))

	assert.False(t, result.IsPrivate)
	assert.Equal(t, "acme", result.Owner)
	assert.Equal(t, "widgets", result.Repo)
	assert.Equal(t, []string{"main", "develop"}, result.Branches)
	assert.Equal(t, "main", result.DefaultBranch)
	assert.False(t, result.TokenRequired)
}

//nolint:paralleltest // Cannot use t.Parallel() with t.Setenv()
func TestResolveCmd_PrivateRepository(t *testing.T) {
	clearEnv(t)
	backend := newFakeBackend(t)
	configPath := writeConfig(t, backend)

	_, _, err := execute(t, "resolve", "https://github.com/acme/secret", "-c", configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_found")

	stdout, _, err := execute(t, "resolve", "https://github.com/acme/secret", "-c", configPath, "--token", "s3cr3t")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"is_private": true`)
	assert.Contains(t, stdout, `"token_required": true`)
}

//nolint:paralleltest // Cannot use t.Parallel() with t.Setenv()
func TestResolveCmd_MalformedURL(t *testing.T) {
	clearEnv(t)
	backend := newFakeBackend(t)
	configPath := writeConfig(t, backend)

	_, _, err := execute(t, "resolve", "not a url", "-c", configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed_url")
}

//nolint:paralleltest // Cannot use t.Parallel() with t.Setenv()
func TestDeployCmd_Success(t *testing.T) {
	clearEnv(t)
	backend := newFakeBackend(t)
	configPath := writeConfig(t, backend)

	stdout, _, err := execute(t, "deploy", "-c", configPath,
		"--name", "widgets",
		"--team", "platform",
		"--url", "https://github.com/acme/widgets",
		"--branch", "develop",
		"--domain", "Widgets")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Deployment submitted successfully")
	assert.Contains(t, stdout, "Status: 201")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.autoDeploys, 1)
	body := backend.autoDeploys[0]
	assert.InDelta(t, 42, body["user_id"], 0)
	assert.Equal(t, "widgets", body["name"])
	assert.Equal(t, "widgets", body["domain"])
	assert.Equal(t, "https://github.com/acme/widgets", body["git_repo"])
	assert.Equal(t, "develop", body["git_branch"])
}

//nolint:paralleltest // Cannot use t.Parallel() with t.Setenv()
func TestDeployCmd_UserIDFlagOverridesConfig(t *testing.T) {
	clearEnv(t)
	backend := newFakeBackend(t)
	configPath := writeConfig(t, backend)

	_, _, err := execute(t, "deploy", "-c", configPath, "--user-id", "7",
		"--name", "widgets", "--team", "platform",
		"--url", "https://github.com/acme/widgets", "--domain", "widgets")
	require.NoError(t, err)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.autoDeploys, 1)
	assert.InDelta(t, 7, backend.autoDeploys[0]["user_id"], 0)
	assert.Equal(t, "main", backend.autoDeploys[0]["git_branch"])
}

//nolint:paralleltest // Cannot use t.Parallel() with t.Setenv()
func TestDeployCmd_PrivateRepositoryNeedsToken(t *testing.T) {
	clearEnv(t)
	backend := newFakeBackend(t)
	configPath := writeConfig(t, backend)

	args := []string{"deploy", "-c", configPath,
		"--name", "secret", "--team", "platform",
		"--url", "https://github.com/acme/secret", "--domain", "secret"}

	stdout, _, err := execute(t, args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass --token")
	assert.Contains(t, stdout, "Could not verify repository")

	_, _, err = execute(t, append(args, "--token", "s3cr3t")...)
	require.NoError(t, err)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Len(t, backend.autoDeploys, 1)
}

//nolint:paralleltest // Cannot use t.Parallel() with t.Setenv()
func TestDeployCmd_ConfiguredTokenUsedByDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "s3cr3t")
	backend := newFakeBackend(t)
	configPath := writeConfig(t, backend)

	_, _, err := execute(t, "deploy", "-c", configPath,
		"--name", "secret", "--team", "platform",
		"--url", "https://github.com/acme/secret", "--domain", "secret")
	require.NoError(t, err)
}

//nolint:paralleltest // Cannot use t.Parallel() with t.Setenv()
func TestDeployCmd_UnknownBranch(t *testing.T) {
	clearEnv(t)
	backend := newFakeBackend(t)
	configPath := writeConfig(t, backend)

	_, _, err := execute(t, "deploy", "-c", configPath,
		"--name", "widgets", "--team", "platform",
		"--url", "https://github.com/acme/widgets", "--domain", "widgets",
		"--branch", "feature/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `branch "feature/x" not found, available: main, develop`)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.autoDeploys)
}

func TestDeployCmd_RequiredFlags(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "deploy", "--name", "widgets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s)")
}

//nolint:paralleltest // Cannot use t.Parallel() with t.Setenv()
func TestBuildCmd_TrailingSlashFallback(t *testing.T) {
	clearEnv(t)
	backend := newFakeBackend(t)
	configPath := writeConfig(t, backend)

	stdout, _, err := execute(t, "build", "-c", configPath,
		"--prefix", "Team1", "--url", "https://github.com/acme/widgets", "--frontend-stack", "react-vite")
	require.NoError(t, err)

	assert.Contains(t, stdout, backend.server.URL+"/api/deploy/")
	assert.Contains(t, stdout, `"queue_id":7`)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, []string{"/api/deploy", "/api/deploy/"}, backend.builds)
}

//nolint:paralleltest // Cannot use t.Parallel() with t.Setenv()
func TestBuildCmd_DetectFillsUnsetOptions(t *testing.T) {
	clearEnv(t)
	backend := newFakeBackend(t)
	configPath := writeConfig(t, backend)

	_, stderr, err := execute(t, "build", "-c", configPath,
		"--prefix", "widgets", "--url", "https://github.com/acme/widgets", "--detect")
	require.NoError(t, err)
	assert.Contains(t, stderr, `frontend="react-vite"`)

	_, _, err = execute(t, "build", "-c", configPath,
		"--prefix", "widgets", "--url", "https://github.com/acme/widgets", "--detect",
		"--repo-dockerfile=false", "--frontend-stack", "vue-vite")
	require.NoError(t, err)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.buildBodies, 2)

	assert.Equal(t, true, backend.buildBodies[0]["use_repo_dockerfile"])
	assert.Equal(t, "react-vite", backend.buildBodies[0]["frontend_stack"])
	assert.Equal(t, "main", backend.buildBodies[0]["branch"])

	// explicit flags win over detection
	assert.Equal(t, false, backend.buildBodies[1]["use_repo_dockerfile"])
	assert.Equal(t, "vue-vite", backend.buildBodies[1]["frontend_stack"])
}

//nolint:paralleltest // Cannot use t.Parallel() with t.Setenv()
func TestDetectCmd(t *testing.T) {
	clearEnv(t)
	backend := newFakeBackend(t)
	configPath := writeConfig(t, backend)

	stdout, _, err := execute(t, "detect", "-c", configPath, "https://github.com/acme/widgets")
	require.NoError(t, err)

	var detection struct {
		Ref           string   `json:"ref"`
		HasDockerfile bool     `json:"has_dockerfile"`
		Dockerfiles   []string `json:"dockerfiles"`
		BackendStack  string   `json:"backend_stack"`
		FrontendStack string   `json:"frontend_stack"`
		Projects      []struct {
			Path     string `json:"path"`
			Language string `json:"language"`
		} `json:"projects"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &detection))

	assert.Equal(t, "HEAD", detection.Ref)
	assert.True(t, detection.HasDockerfile)
	assert.Equal(t, []string{"Dockerfile"}, detection.Dockerfiles)
	assert.Equal(t, "go", detection.BackendStack)
	assert.Equal(t, "react-vite", detection.FrontendStack)
	require.Len(t, detection.Projects, 2)
	assert.Equal(t, "web", detection.Projects[1].Path)
	assert.Equal(t, "nodejs", detection.Projects[1].Language)

	_, _, err = execute(t, "detect", "-c", configPath, "https://github.com/acme/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to detect stack (not_found)")
}

//nolint:paralleltest // Cannot use t.Parallel() with t.Setenv()
func TestHistoryCmd_ServiceJSON(t *testing.T) {
	clearEnv(t)
	backend := newFakeBackend(t)
	configPath := writeConfig(t, backend)

	stdout, stderr, err := execute(t, "history", "-c", configPath, "--service", "5", "--format", "json")
	require.NoError(t, err)

	var report struct {
		Deployments []struct {
			DeployID int    `json:"deploy_id"`
			Status   string `json:"status"`
		} `json:"deployments"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	require.Len(t, report.Deployments, 2)
	assert.Equal(t, 12, report.Deployments[0].DeployID)
	assert.Equal(t, "unknown", report.Deployments[0].Status)
	assert.Equal(t, "success", report.Deployments[1].Status)

	assert.Contains(t, stderr, "Deployments: 2")
}

//nolint:paralleltest // Cannot use t.Parallel() with t.Setenv()
func TestHistoryCmd_WritesOutputFile(t *testing.T) {
	clearEnv(t)
	backend := newFakeBackend(t)
	configPath := writeConfig(t, backend)
	outputPath := filepath.Join(t.TempDir(), "reports", "history.csv")

	stdout, stderr, err := execute(t, "history", "-c", configPath, "-s", "5", "-f", "csv", "-o", outputPath)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Written to: "+outputPath)

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Deploy ID,Service ID,Branch")
}

func TestHistoryCmd_ServiceAndUserAreExclusive(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "history", "--service", "5", "--user", "1")
	require.Error(t, err)
}

func TestCommands_ConfigError(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"resolve", "https://github.com/acme/widgets"},
		{"history"},
		{"wizard"},
	} {
		t.Run(args[0], func(t *testing.T) {
			t.Parallel()

			_, _, err := execute(t, append(args, "--config", "nonexistent.yaml")...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to load configuration")
		})
	}
}
