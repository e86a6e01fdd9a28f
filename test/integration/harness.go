// Package integration provides a reusable test harness for end-to-end
// integration testing of the docflow server. It starts a full HTTP server
// with in-memory stores, a seeded organizational directory, and a test
// JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Bhavik-SSBDigital/docflow/internal/analytics"
	"github.com/Bhavik-SSBDigital/docflow/internal/config"
	"github.com/Bhavik-SSBDigital/docflow/internal/directory"
	"github.com/Bhavik-SSBDigital/docflow/internal/inbox"
	"github.com/Bhavik-SSBDigital/docflow/internal/notify"
	"github.com/Bhavik-SSBDigital/docflow/internal/observability"
	"github.com/Bhavik-SSBDigital/docflow/internal/process"
	"github.com/Bhavik-SSBDigital/docflow/internal/transport"
	"github.com/Bhavik-SSBDigital/docflow/model"
)

// TestHarness encapsulates a fully wired docflow instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Directory    *directory.MemoryDirectory
	ProcessStore *process.MemoryStore
	InboxStore   *inbox.MemoryStore
	InboxService *inbox.Service
	Engine       *process.Engine

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	requireConnectorApproval bool
	handlerTimeout           time.Duration
}

// WithConnectorApproval gates handler completion on branch-head approval of
// every connector department.
func WithConnectorApproval() HarnessOption {
	return func(c *harnessConfig) {
		c.requireConnectorApproval = true
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// NewTestHarness creates and starts a full docflow test instance. The server
// is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{t: t}
	logger := zap.NewNop()

	// Step 1: Seed the organizational directory.
	h.Directory = directory.NewMemoryDirectory()
	seedDefaultOrg(h.Directory)

	// Step 2: Build in-memory stores and services.
	h.ProcessStore = process.NewMemoryStore()
	h.InboxStore = inbox.NewMemoryStore()
	h.InboxService = inbox.NewService(h.InboxStore, nil, logger)

	engineCfg := config.EngineConfig{
		RequireConnectorApproval: hc.requireConnectorApproval,
		PendingAlertAfter:        time.Hour,
		SweepInterval:            time.Hour,
	}
	h.Engine = process.NewEngine(
		h.ProcessStore,
		h.Directory,
		h.InboxService,
		notify.NewLogDispatcher(logger),
		process.NoopAccessGranter{},
		analytics.NoopSink{},
		nil,
		logger,
		engineCfg,
	)

	// Step 3: Create JWT issuer.
	h.issuer = newTokenIssuer(t)

	// Step 4: Build config.
	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	h.cfg.Identity = config.IdentityConfig{
		Issuer:       h.issuer.Issuer(),
		Audience:     h.issuer.Audience(),
		JWKSURL:      h.issuer.JWKSURL(),
		JWKSCacheTTL: 1 * time.Hour,
		Algorithms:   []string{"RS256"},
	}
	h.cfg.Engine = engineCfg
	h.cfg.Observability.Metrics.Enabled = false

	// Step 5: Build router with the full middleware chain.
	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), h.cfg.Identity.JWKSCacheTTL, logger)

	router := transport.NewRouter(transport.Dependencies{
		Config:       h.cfg,
		Engine:       h.Engine,
		Inbox:        h.InboxService,
		Logger:       logger,
		Authenticate: transport.JWTAuthenticator(h.cfg.Identity, jwks),
		Readiness: observability.ReadinessChecks{
			ProcessStore: h.ProcessStore,
			InboxStore:   h.InboxStore,
		},
	})

	// Step 6: Start test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// seedDefaultOrg loads the fixture organization: a head office branch with a
// three-step finance workflow, and an eastern branch with a one-step
// connector department.
func seedDefaultOrg(dir *directory.MemoryDirectory) {
	dir.SeedBranch(directory.Branch{
		ID: "b-ho", Name: "Head Office", IsHeadOffice: true, HeadUserID: "u-hohead",
	})
	dir.SeedBranch(directory.Branch{
		ID: "b-east", Name: "Eastern", HeadUserID: "u-easthead",
	})

	dir.SeedDepartment(directory.Department{
		ID: "d-fin", Name: "finance", BranchID: "b-ho", HeadUserID: "u-finhead",
		Steps: []model.Step{
			{StepNumber: 1, Work: model.WorkESign, Actors: []model.ActorRef{{UserID: "u1", RoleID: "r-clerk"}}},
			{StepNumber: 2, Work: model.WorkESign, Actors: []model.ActorRef{{UserID: "u2", RoleID: "r-officer"}}},
			{StepNumber: 3, Work: model.WorkESign, Actors: []model.ActorRef{{UserID: "u3", RoleID: "r-manager"}}},
		},
	})
	dir.SeedDepartment(directory.Department{
		ID: "d-conn", Name: "eastern-ops", BranchID: "b-east", HeadUserID: "u-easthead",
		Steps: []model.Step{
			{StepNumber: 1, Work: model.WorkESign, Actors: []model.ActorRef{{UserID: "c1", RoleID: "r-ops"}}},
		},
	})

	users := []directory.User{
		{ID: "u1", Username: "clerk", Email: "clerk@docflow.example.com", RoleID: "r-clerk", BranchID: "b-ho", DepartmentID: "d-fin"},
		{ID: "u2", Username: "officer", Email: "officer@docflow.example.com", RoleID: "r-officer", BranchID: "b-ho", DepartmentID: "d-fin"},
		{ID: "u3", Username: "manager", Email: "manager@docflow.example.com", RoleID: "r-manager", BranchID: "b-ho", DepartmentID: "d-fin"},
		{ID: "c1", Username: "ops", Email: "ops@docflow.example.com", RoleID: "r-ops", BranchID: "b-east", DepartmentID: "d-conn"},
		{ID: "u-finhead", Username: "finhead", Email: "finhead@docflow.example.com", BranchID: "b-ho", DepartmentID: "d-fin"},
		{ID: "u-easthead", Username: "easthead", Email: "easthead@docflow.example.com", BranchID: "b-east"},
		{ID: "u-hohead", Username: "hohead", Email: "hohead@docflow.example.com", BranchID: "b-ho"},
	}
	for _, u := range users {
		dir.SeedUser(u)
	}

	dir.SeedRole(directory.Role{ID: "r-clerk", Name: "Clerk"})
	dir.SeedRole(directory.Role{ID: "r-officer", Name: "Officer"})
	dir.SeedRole(directory.Role{ID: "r-manager", Name: "Manager"})
	dir.SeedRole(directory.Role{ID: "r-ops", Name: "Operations"})
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// GETWithHeaders performs an authenticated GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, headers)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, token, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Default test claims ---

// ClerkClaims returns TestClaims for the step-one finance clerk.
func ClerkClaims() TestClaims {
	return TestClaims{
		SubjectID:    "u1",
		Username:     "clerk",
		Email:        "clerk@docflow.example.com",
		RoleID:       "r-clerk",
		BranchID:     "b-ho",
		DepartmentID: "d-fin",
	}
}

// OfficerClaims returns TestClaims for the step-two finance officer.
func OfficerClaims() TestClaims {
	return TestClaims{
		SubjectID:    "u2",
		Username:     "officer",
		Email:        "officer@docflow.example.com",
		RoleID:       "r-officer",
		BranchID:     "b-ho",
		DepartmentID: "d-fin",
	}
}

// ManagerClaims returns TestClaims for the step-three finance manager.
func ManagerClaims() TestClaims {
	return TestClaims{
		SubjectID:    "u3",
		Username:     "manager",
		Email:        "manager@docflow.example.com",
		RoleID:       "r-manager",
		BranchID:     "b-ho",
		DepartmentID: "d-fin",
	}
}

// ConnectorClaims returns TestClaims for the eastern connector operator.
func ConnectorClaims() TestClaims {
	return TestClaims{
		SubjectID:    "c1",
		Username:     "ops",
		Email:        "ops@docflow.example.com",
		RoleID:       "r-ops",
		BranchID:     "b-east",
		DepartmentID: "d-conn",
	}
}

// BranchHeadClaims returns TestClaims for the eastern branch head.
func BranchHeadClaims() TestClaims {
	return TestClaims{
		SubjectID: "u-easthead",
		Username:  "easthead",
		Email:     "easthead@docflow.example.com",
		BranchID:  "b-east",
	}
}
