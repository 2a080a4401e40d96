package daemon_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"strata/internal/catalog"
	"strata/internal/config"
	"strata/internal/daemon"
	"strata/internal/jobs"
	"strata/internal/logging"
	"strata/internal/objectstore"
	"strata/internal/testsupport"
	"strata/internal/workflow"
)

type fixture struct {
	cfg    *config.Config
	engine *workflow.Engine
	daemon *daemon.Daemon
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	payloads, err := objectstore.NewFS(cfg.Paths.SpoolDir)
	if err != nil {
		t.Fatalf("objectstore.NewFS: %v", err)
	}
	engine := workflow.NewEngineWithBackends(cfg, store, catalog.NewMemory(cfg.Catalog.PageSize), payloads, nil, logging.NewNop())
	d, err := daemon.New(cfg, store, logging.NewNop(), engine)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return &fixture{cfg: cfg, engine: engine, daemon: d}
}

func TestDaemonStartStop(t *testing.T) {
	fix := newFixture(t)
	d := fix.daemon

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.StoreDriver != "sqlite" || status.DatabasePath == "" {
		t.Fatalf("status = %+v, want sqlite store details", status)
	}

	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("expected a bound API address")
	}
	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if d.APIAddr() != "" {
		t.Fatal("expected API address to clear after stop")
	}
}

func TestDaemonLockExcludesSecondInstance(t *testing.T) {
	fix := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := fix.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	store := testsupport.MustOpenStore(t, fix.cfg)
	payloads, err := objectstore.NewFS(fix.cfg.Paths.SpoolDir)
	if err != nil {
		t.Fatalf("objectstore.NewFS: %v", err)
	}
	engine := workflow.NewEngineWithBackends(fix.cfg, store, catalog.NewMemory(fix.cfg.Catalog.PageSize), payloads, nil, logging.NewNop())
	second, err := daemon.New(fix.cfg, store, logging.NewNop(), engine)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { second.Close() })

	if err := second.Start(ctx); err == nil {
		t.Fatal("expected the instance lock to exclude a second daemon")
	}

	fix.daemon.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("start after lock release: %v", err)
	}
	second.Stop()
}

func TestDaemonStatusCountsJobs(t *testing.T) {
	fix := newFixture(t)

	ctx := context.Background()
	if _, err := fix.engine.CreateJob(ctx, workflow.CreateRequest{
		Username: "bob",
		Source:   workflow.Source{Granules: []string{"s3://inputs/g000.nc"}},
		Stages:   []workflow.Stage{{ServiceID: "svc/reproject:1"}},
	}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	status := fix.daemon.Status(ctx)
	if status.Jobs[jobs.JobAccepted] != 1 {
		t.Fatalf("status jobs = %v, want one accepted", status.Jobs)
	}
}
