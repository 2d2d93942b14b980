package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/gesture"
	"github.com/specialistvlad/graphedit/internal/highlight"
	"github.com/specialistvlad/graphedit/internal/rules"
	"github.com/specialistvlad/graphedit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const replayScript = `
name: start to task
scene:
  nodes:
    - {id: s, type: start_event, bounds: {x: 0, y: 0, w: 36, h: 36}}
    - {id: t, type: task, bounds: {x: 200, y: 0, w: 100, h: 60}}
steps:
  - {action: begin_edge, node: s}
  - {action: move, at: {x: 240, y: 20}}
  - {action: complete, at: {x: 240, y: 20}, edge_as: e}
expect:
  edges: {e: {type: sequence_flow, source: s, target: t}}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func setupApp(t *testing.T, mutate func(*Config)) (*App, *testutil.SafeBuffer) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "rules.hcl", testutil.RulesHCL)

	cfg := DefaultConfig()
	cfg.RulesPatterns = []string{dir}
	cfg.LogLevel = "debug"
	if mutate != nil {
		mutate(&cfg)
	}
	valid, err := NewConfig(cfg)
	require.NoError(t, err)

	logs := &testutil.SafeBuffer{}
	a := NewApp(logs, valid, rules.NewLoader())
	t.Cleanup(func() {
		_ = a.Close()
		if os.Getenv("GRAPHEDIT_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return a, logs
}

func TestNewConfig_Validation(t *testing.T) {
	base := DefaultConfig()
	base.RulesPatterns = []string{"rules"}

	for _, tc := range []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "upper case is normalized", mutate: func(c *Config) { c.LogLevel = "DEBUG"; c.LogFormat = "JSON" }},
		{name: "no rules", mutate: func(c *Config) { c.RulesPatterns = nil }, wantErr: "rules path is required"},
		{name: "bad format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "invalid log format"},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "invalid log level"},
		{name: "negative timeout", mutate: func(c *Config) { c.ConnectTimeout = -time.Second }, wantErr: "invalid connect timeout"},
		{name: "port out of range", mutate: func(c *Config) { c.HealthcheckPort = 70000 }, wantErr: "invalid healthcheck port"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			got, err := NewConfig(cfg)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, []string{"text", "json"}, got.LogFormat)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "graphedit.toml", `
rules = ["rules/**/*.hcl"]
log_level = "warn"
journal = "edits.db"
host_url = "http://localhost:3000/socket.io/"
connect_timeout = "3s"
filter_invalid_ports = true
`)
	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"rules/**/*.hcl"}, cfg.RulesPatterns)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat, "unset keys keep their default")
	assert.Equal(t, "edits.db", cfg.JournalPath)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.True(t, cfg.FilterInvalidPorts)

	bad := writeFile(t, dir, "bad.toml", "rules = [\"x\"]\nworkers = 4\n")
	_, err = LoadConfigFile(bad)
	require.ErrorContains(t, err, "unknown keys: workers")

	_, err = LoadConfigFile(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
}

func TestNewApp_PanicsOnBrokenRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rules.hcl", `node "task" {`)
	cfg, err := NewConfig(Config{RulesPatterns: []string{dir}, LogFormat: "text", LogLevel: "info"})
	require.NoError(t, err)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.ErrorContains(t, r.(error), "failed to load rules")
	}()
	NewApp(&testutil.SafeBuffer{}, cfg, rules.NewLoader())
}

func TestNewApp_LogsRuleFindings(t *testing.T) {
	a, logs := setupApp(t, nil)
	assert.NotEmpty(t, a.Rules().NodeTypes())
	assert.Contains(t, logs.String(), "Rule table finding.")
	assert.Contains(t, logs.String(), "service_task")
}

func TestApp_ReplayJournalsEachScript(t *testing.T) {
	dir := t.TempDir()
	a, _ := setupApp(t, func(c *Config) { c.JournalPath = filepath.Join(dir, "journal.db") })
	good := writeFile(t, dir, "good.yaml", replayScript)
	broken := writeFile(t, dir, "broken.yaml", "steps:\n  - {action: fly}\n")

	reports, err := a.Replay(context.Background(), good, broken, good)
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown action")
	require.Len(t, reports, 3)
	assert.Equal(t, "start to task", reports[0].Name)
	assert.Empty(t, reports[0].Failures)
	assert.Equal(t, reports[0].Steps, reports[2].Steps)

	ctx := a.Context()
	entries, err := a.Journal().Entries(ctx)
	require.NoError(t, err)
	// Scene plus edge creation, for each of the two good runs.
	require.Len(t, entries, 4)
	assert.Equal(t, "scene", entries[0].Name)
	assert.Equal(t, "create sequence_flow", entries[1].Name)
	assert.NotEqual(t, entries[0].Session, entries[2].Session)

	n, err := a.Journal().Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestApp_ConnectNeedsHost(t *testing.T) {
	a, _ := setupApp(t, nil)
	require.ErrorContains(t, a.Connect(context.Background()), "no scene host URL configured")
}

func TestApp_HealthHandler(t *testing.T) {
	a, _ := setupApp(t, nil)
	opts := a.ControllerOptions(highlight.Discard)
	store := a.NewStore()
	opts.Store = store
	ctrl := gesture.New(opts)
	start := testutil.AddNode(t, store, "start_event", geom.R(0, 0, 36, 36), "")
	require.NoError(t, ctrl.BeginEdgeCreation(a.Context(), start, ""))

	rec := httptest.NewRecorder()
	a.healthHandler(ctrl)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got healthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, healthStatus{
		Status:      "ok",
		Gesture:     "edge_creation",
		Nodes:       1,
		Fingerprint: store.Fingerprint(),
	}, got)
}

func TestApp_HealthCheckServerLifecycle(t *testing.T) {
	a, _ := setupApp(t, nil)
	opts := a.ControllerOptions(nil)
	opts.Store = a.NewStore()
	ctrl := gesture.New(opts)

	addr, err := a.healthCheckServer(ctrl)
	require.NoError(t, err)
	assert.Empty(t, addr, "port 0 disables the server")
	require.NoError(t, a.closeHealthCheckServer())
}

func TestApp_NewControllerLoadsScene(t *testing.T) {
	dir := t.TempDir()
	scenePath := writeFile(t, dir, "scene.yaml", `
nodes:
  - {id: pool, type: pool, bounds: {x: 0, y: 0, w: 600, h: 300}}
  - {id: s, type: start_event, bounds: {x: 20, y: 100, w: 36, h: 36}, parent: pool}
  - {id: t, type: task, bounds: {x: 250, y: 90, w: 100, h: 60}, parent: pool}
edges:
  - {id: e, type: sequence_flow, from: s, to: t}
`)
	a, logs := setupApp(t, func(c *Config) {
		c.ScenePath = scenePath
		c.JournalPath = filepath.Join(dir, "journal.db")
	})

	ctrl, err := a.NewController(a.Context(), highlight.Discard)
	require.NoError(t, err)
	assert.Len(t, ctrl.Store().Nodes(), 3)
	assert.Len(t, ctrl.Store().Edges(), 1)
	assert.Contains(t, logs.String(), "Scene loaded.")

	entries, err := a.Journal().Entries(a.Context())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "load scene", entries[0].Name)
}

func TestApp_NewControllerSceneErrors(t *testing.T) {
	dir := t.TempDir()

	a, _ := setupApp(t, func(c *Config) { c.ScenePath = filepath.Join(dir, "missing.yaml") })
	_, err := a.NewController(a.Context(), nil)
	require.ErrorContains(t, err, "reading scene")

	dangling := writeFile(t, dir, "dangling.yaml", "nodes:\n  - {id: a, type: task}\n  - {id: b, type: task, parent: c}\n")
	a, _ = setupApp(t, func(c *Config) { c.ScenePath = dangling })
	_, err = a.NewController(a.Context(), nil)
	require.ErrorContains(t, err, `parent "c" not declared before it`)
}

type brokenResponseWriter struct {
	*httptest.ResponseRecorder
}

func (brokenResponseWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestApp_HealthHandlerLogsWriteFailures(t *testing.T) {
	a, logs := setupApp(t, nil)
	opts := a.ControllerOptions(nil)
	opts.Store = a.NewStore()
	ctrl := gesture.New(opts)

	w := brokenResponseWriter{httptest.NewRecorder()}
	a.healthHandler(ctrl)(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, logs.String(), "Failed to write health check response.")
	assert.Contains(t, logs.String(), "connection reset")
}
