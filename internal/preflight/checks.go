package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"strata/internal/config"
	"strata/internal/jobs"
)

const probeTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and that the
// process can read, write, and traverse it.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return Result{Name: name, Detail: fmt.Sprintf("%s does not exist", path)}
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("stat %s: %v", path, err)}
	case !info.IsDir():
		return Result{Name: name, Detail: fmt.Sprintf("%s is not a directory", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s insufficient permissions: %v", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckStore opens the job store and verifies connectivity. On sqlite this
// also exercises schema migration against the configured data directory.
func CheckStore(ctx context.Context, cfg *config.Config) Result {
	const name = "Job store"

	store, err := jobs.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("open: %v", err)}
	}
	defer store.Close()

	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := store.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("ping: %v", err)}
	}
	return Result{Name: name, Passed: true, Detail: store.Driver() + " reachable"}
}

// CheckCatalog verifies that the granule catalog answers HTTP requests. Any
// response below 500 counts as reachable; auth and path problems surface
// per query once jobs run.
func CheckCatalog(ctx context.Context, baseURL, token string) Result {
	const name = "Granule catalog"

	base := strings.TrimSpace(baseURL)
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url: %v", err)}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: probeTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("returned status %d", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckExecutor validates the executor configuration. The none executor
// always passes, http probes the webhook endpoint, and amqp validates the
// broker URL without dialing it.
func CheckExecutor(ctx context.Context, cfg *config.Config) Result {
	const name = "Workflow executor"

	switch strings.ToLower(strings.TrimSpace(cfg.Executor.Kind)) {
	case "", "none":
		return Result{Name: name, Passed: true, Detail: "polling only (no push signaling)"}
	case "http":
		endpoint := strings.TrimSpace(cfg.Executor.Endpoint)
		if endpoint == "" {
			return Result{Name: name, Detail: "http executor requires endpoint"}
		}
		return checkWebhookEndpoint(ctx, name, endpoint)
	case "amqp":
		raw := strings.TrimSpace(cfg.Executor.AMQPURL)
		if raw == "" {
			return Result{Name: name, Detail: "amqp executor requires amqp_url"}
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("invalid amqp url: %v", err)}
		}
		if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			return Result{Name: name, Detail: fmt.Sprintf("unsupported broker scheme %q", parsed.Scheme)}
		}
		return Result{Name: name, Passed: true, Detail: "broker " + parsed.Host}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unknown executor kind %q", cfg.Executor.Kind)}
	}
}

// checkWebhookEndpoint treats any HTTP response as proof of reachability;
// the dispatch routes only accept POST, so a 404 or 405 on GET is expected.
func checkWebhookEndpoint(ctx context.Context, name, endpoint string) Result {
	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid endpoint: %v", err)}
	}
	client := &http.Client{Timeout: probeTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable: %v", err)}
	}
	resp.Body.Close()
	return Result{Name: name, Passed: true, Detail: "webhook reachable"}
}
