package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"strata/internal/config"
)

func TestLoadDefaultsExpandPathsAndHonorEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("STRATA_API_TOKEN", "env-token")

	cfg, resolved, exists, err := config.Load("")
	if err == nil {
		t.Fatal("expected error: catalog.base_url unset by default")
	}
	if cfg != nil || resolved != "" || exists {
		t.Fatal("expected nil config on validation failure")
	}

	configPath := filepath.Join(tempHome, "strata.toml")
	writeConfig(t, configPath, map[string]any{
		"catalog": map[string]any{"base_url": "https://catalog.example/search"},
	})

	cfg, resolved, exists, err = config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("resolved = %q, want %q", resolved, configPath)
	}

	wantData := filepath.Join(tempHome, ".local", "share", "strata")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("data dir = %q, want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.SpoolDir != filepath.Join(wantData, "spool") {
		t.Fatalf("unexpected spool dir: %q", cfg.Paths.SpoolDir)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.Path != filepath.Join(wantData, "strata.db") {
		t.Fatalf("unexpected database path: %q", cfg.Database.Path)
	}
	if cfg.Server.Bind != "127.0.0.1:7644" {
		t.Fatalf("unexpected bind: %q", cfg.Server.Bind)
	}
	if cfg.Server.APIToken != "env-token" {
		t.Fatalf("expected api token from env, got %q", cfg.Server.APIToken)
	}
	if cfg.Orchestrator.PreviewThreshold != 500 {
		t.Fatalf("preview threshold = %d, want 500", cfg.Orchestrator.PreviewThreshold)
	}
	if cfg.Orchestrator.WorkItemRetryLimit != 3 {
		t.Fatalf("retry limit = %d, want 3", cfg.Orchestrator.WorkItemRetryLimit)
	}
	if cfg.Executor.Kind != "none" {
		t.Fatalf("executor kind = %q, want none", cfg.Executor.Kind)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  map[string]any
		wantErr string
	}{
		{
			name: "unknown driver",
			mutate: map[string]any{
				"database": map[string]any{"driver": "oracle"},
			},
			wantErr: "database.driver",
		},
		{
			name: "postgres without dsn",
			mutate: map[string]any{
				"database": map[string]any{"driver": "postgres"},
			},
			wantErr: "database.dsn",
		},
		{
			name: "s3 without bucket",
			mutate: map[string]any{
				"object_store": map[string]any{
					"backend":    "s3",
					"endpoint":   "localhost:9000",
					"access_key": "ak",
					"secret_key": "sk",
				},
			},
			wantErr: "object_store.bucket",
		},
		{
			name: "http executor without endpoint",
			mutate: map[string]any{
				"executor": map[string]any{"kind": "http"},
			},
			wantErr: "executor.endpoint",
		},
		{
			name: "negative retry limit",
			mutate: map[string]any{
				"orchestrator": map[string]any{"work_item_retry_limit": -1},
			},
			wantErr: "work_item_retry_limit",
		},
		{
			name: "max page below default",
			mutate: map[string]any{
				"orchestrator": map[string]any{"default_page_size": 100, "max_page_size": 50},
			},
			wantErr: "max_page_size",
		},
		{
			name: "bad log format",
			mutate: map[string]any{
				"logging": map[string]any{"format": "xml"},
			},
			wantErr: "logging.format",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tempHome := t.TempDir()
			t.Setenv("HOME", tempHome)

			doc := map[string]any{
				"catalog": map[string]any{"base_url": "https://catalog.example/search"},
			}
			for key, value := range tc.mutate {
				if existing, ok := doc[key].(map[string]any); ok {
					for k, v := range value.(map[string]any) {
						existing[k] = v
					}
					continue
				}
				doc[key] = value
			}
			configPath := filepath.Join(tempHome, "strata.toml")
			writeConfig(t, configPath, doc)

			_, _, _, err := config.Load(configPath)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadMissingExplicitPathUsesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "absent.toml")
	writeConfig(t, filepath.Join(tempHome, "unused.toml"), nil)

	_, resolved, exists, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for defaults without catalog URL")
	}
	_ = resolved
	_ = exists
}

func TestCreateSampleRoundTrips(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	samplePath := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(samplePath); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	content, err := os.ReadFile(samplePath)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(content, &parsed); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if parsed.Orchestrator.PreviewThreshold != 500 {
		t.Fatalf("sample preview threshold = %d, want 500", parsed.Orchestrator.PreviewThreshold)
	}
}

func TestIsAdmin(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.AdminUsernames = []string{"adm", "Ops"}

	if !cfg.IsAdmin("adm") {
		t.Fatal("expected adm to be admin")
	}
	if !cfg.IsAdmin("ops") {
		t.Fatal("expected admin match to ignore case")
	}
	if cfg.IsAdmin("joe") {
		t.Fatal("expected joe not to be admin")
	}
	if cfg.IsAdmin("") {
		t.Fatal("expected empty username not to be admin")
	}
}

func writeConfig(t *testing.T, path string, doc map[string]any) {
	t.Helper()
	if doc == nil {
		doc = map[string]any{}
	}
	content, err := toml.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
