package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/config"
	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/schedule"
	"github.com/JakeFAU/leadwatch/internal/seed"
)

type fakeApp struct {
	mu       sync.Mutex
	ran      bool
	closed   bool
	scanOpts []schedule.Options
	dueAt    time.Time
	dueOpts  schedule.Options
	seeded   []seed.Document

	run     lead.ScanRun
	scanErr error
	tasks   []lead.ScanTask
}

func (f *fakeApp) Run(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = true
	return nil
}

func (f *fakeApp) ScanOnce(_ context.Context, opts schedule.Options) (lead.ScanRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanOpts = append(f.scanOpts, opts)
	return f.run, f.scanErr
}

func (f *fakeApp) Seed(_ context.Context, doc seed.Document) (seed.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeded = append(f.seeded, doc)
	return seed.Result{Strategies: len(doc.Strategies), Companies: len(doc.Companies)}, nil
}

func (f *fakeApp) Due(_ context.Context, at time.Time, opts schedule.Options) ([]lead.ScanTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dueAt = at
	f.dueOpts = opts
	return f.tasks, nil
}

func (f *fakeApp) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type harness struct {
	app        *fakeApp
	fullCalls  int
	storeCalls int
	cfg        config.Config
	loadErr    error
}

func (h *harness) factories() factories {
	return factories{
		loadConfig: func(string) (config.Config, error) { return h.cfg, h.loadErr },
		newLogger:  func(*config.Config) (*zap.Logger, error) { return zap.NewNop(), nil },
		full: func(context.Context, *config.Config, *zap.Logger) (App, error) {
			h.fullCalls++
			return h.app, nil
		},
		stores: func(context.Context, *config.Config, *zap.Logger) (App, error) {
			h.storeCalls++
			return h.app, nil
		},
	}
}

func execute(t *testing.T, h *harness, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(h.factories())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newHarness() *harness {
	cfg := config.Config{}
	cfg.Monitor.MaxTasks = 40
	return &harness{app: &fakeApp{}, cfg: cfg}
}

func TestServeRunsFullApp(t *testing.T) {
	t.Parallel()
	h := newHarness()

	_, err := execute(t, h, "serve")
	require.NoError(t, err)
	assert.True(t, h.app.ran)
	assert.Equal(t, 1, h.fullCalls)
	assert.Zero(t, h.storeCalls)
}

func TestConfigErrorStopsCommand(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.loadErr = errors.New("bad yaml")

	_, err := execute(t, h, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
	assert.Zero(t, h.fullCalls)
}

func TestScanPassesOptionsAndPrintsRun(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.app.run = lead.ScanRun{ID: "run-1", Status: lead.RunStatusSucceeded, Counters: lead.ScanCounters{LeadsCreated: 2}}

	out, err := execute(t, h, "scan", "--client", "acme", "--force", "--company", "c1,c2")
	require.NoError(t, err)
	require.Len(t, h.app.scanOpts, 1)
	opts := h.app.scanOpts[0]
	assert.Equal(t, "acme", opts.ClientID)
	assert.True(t, opts.Force)
	assert.Equal(t, 40, opts.MaxTasks, "zero falls back to monitor.max_tasks")
	assert.Equal(t, []string{"c1", "c2"}, opts.CompanyIDs)
	assert.True(t, h.app.closed)

	var run lead.ScanRun
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 2, run.Counters.LeadsCreated)
}

func TestScanExplicitMaxTasks(t *testing.T) {
	t.Parallel()
	h := newHarness()

	_, err := execute(t, h, "scan", "--max-tasks", "3")
	require.NoError(t, err)
	require.Len(t, h.app.scanOpts, 1)
	assert.Equal(t, 3, h.app.scanOpts[0].MaxTasks)

	_, err = execute(t, newHarness(), "scan", "--max-tasks=-1")
	require.Error(t, err)
}

func TestScanFailedRunReturnsError(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.app.run = lead.ScanRun{ID: "run-2", Status: lead.RunStatusFailed, ErrorText: "all scouts failed"}

	out, err := execute(t, h, "scan")
	require.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, err.Error(), "all scouts failed")
	assert.Contains(t, out, "run-2")
	assert.True(t, h.app.closed)
}

func TestScanErrorPropagates(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.app.scanErr = lead.ErrQueueClosed

	_, err := execute(t, h, "scan")
	require.ErrorIs(t, err, lead.ErrQueueClosed)
}

func TestSeedLoadsFileIntoStores(t *testing.T) {
	t.Parallel()
	h := newHarness()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	doc := `
strategies:
  - client_id: acme
    name: Acme
    frequency: weekly
companies:
  - id: c1
    client_id: acme
    name: Globex
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	out, err := execute(t, h, "seed", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, 1, h.storeCalls)
	assert.Zero(t, h.fullCalls)
	require.Len(t, h.app.seeded, 1)
	assert.Equal(t, "Globex", h.app.seeded[0].Companies[0].Name)
	assert.JSONEq(t, `{"strategies":1,"companies":1}`, out)
	assert.True(t, h.app.closed)
}

func TestSeedRequiresFile(t *testing.T) {
	t.Parallel()
	h := newHarness()

	_, err := execute(t, h, "seed")
	require.Error(t, err)
	assert.Zero(t, h.storeCalls)

	_, err = execute(t, h, "seed", "--file", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Zero(t, h.storeCalls)
}

func TestDuePrintsTasks(t *testing.T) {
	t.Parallel()
	h := newHarness()
	scanned := time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)
	h.app.tasks = []lead.ScanTask{{
		ClientID: "acme",
		Company:  lead.Company{ID: "c1", Name: "Globex", ClientID: "acme", LastScannedAt: &scanned},
	}}

	out, err := execute(t, h, "due", "--at", "2026-03-02T12:00:00Z", "--client", "acme", "--max-tasks", "5")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), h.app.dueAt.UTC())
	assert.Equal(t, schedule.Options{ClientID: "acme", MaxTasks: 5}, h.app.dueOpts)
	assert.Equal(t, 1, h.storeCalls)

	var got struct {
		Tasks []dueRow `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "c1", got.Tasks[0].CompanyID)
	assert.Equal(t, "acme", got.Tasks[0].ClientID)
	require.NotNil(t, got.Tasks[0].LastScannedAt)
	assert.True(t, scanned.Equal(*got.Tasks[0].LastScannedAt))
}

func TestDueRejectsBadInput(t *testing.T) {
	t.Parallel()
	h := newHarness()

	_, err := execute(t, h, "due", "--at", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse --at")

	_, err = execute(t, h, "due", "--max-tasks=-2")
	require.Error(t, err)
	assert.Zero(t, h.storeCalls)
}

func TestResolveRuntimeWithoutPreRun(t *testing.T) {
	t.Parallel()
	_, err := resolveRuntime(context.Background())
	require.Error(t, err)
}
