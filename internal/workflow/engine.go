package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"strata/internal/catalog"
	"strata/internal/config"
	"strata/internal/executor"
	"strata/internal/jobs"
	"strata/internal/logging"
	"strata/internal/objectstore"
)

const (
	defaultCatalogPageSize = 2000
	defaultClaimTimeout    = 30 * time.Minute
	defaultPageLimit       = 10
)

// Engine coordinates job admission, work distribution, and completion
// bookkeeping across workflow steps.
type Engine struct {
	cfg      *config.Config
	store    *jobs.Store
	catalog  catalog.Client
	payloads objectstore.Store
	executor executor.Executor
	logger   *slog.Logger
}

// NewEngine constructs an engine with backends built from configuration.
func NewEngine(cfg *config.Config, store *jobs.Store, logger *slog.Logger) (*Engine, error) {
	cat, err := catalogFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("workflow: configure catalog client: %w", err)
	}
	payloads, err := payloadStoreFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("workflow: configure payload store: %w", err)
	}
	exec, err := executor.New(executor.Config{
		Kind:           cfg.Executor.Kind,
		Endpoint:       cfg.Executor.Endpoint,
		AMQPURL:        cfg.Executor.AMQPURL,
		Exchange:       cfg.Executor.Exchange,
		RequestTimeout: time.Duration(cfg.Executor.RequestTimeout) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("workflow: configure executor: %w", err)
	}
	return NewEngineWithBackends(cfg, store, cat, payloads, exec, logger), nil
}

// NewEngineWithBackends constructs an engine with explicit backends (used in tests).
func NewEngineWithBackends(cfg *config.Config, store *jobs.Store, cat catalog.Client, payloads objectstore.Store, exec executor.Executor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	if exec == nil {
		exec = executor.Noop{}
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		catalog:  cat,
		payloads: payloads,
		executor: exec,
		logger:   logging.NewComponentLogger(logger, "workflow"),
	}
}

func catalogFromConfig(cfg *config.Config) (catalog.Client, error) {
	var httpClient *http.Client
	if cfg.Catalog.RequestTimeout > 0 {
		httpClient = &http.Client{Timeout: time.Duration(cfg.Catalog.RequestTimeout) * time.Second}
	}
	return catalog.NewHTTP(catalog.HTTPConfig{
		BaseURL:    cfg.Catalog.BaseURL,
		Token:      cfg.Catalog.Token,
		PageSize:   cfg.Catalog.PageSize,
		HTTPClient: httpClient,
	})
}

func payloadStoreFromConfig(cfg *config.Config) (objectstore.Store, error) {
	switch cfg.ObjectStore.Backend {
	case "", "fs":
		return objectstore.NewFS(cfg.Paths.SpoolDir)
	case "s3":
		return objectstore.NewS3(objectstore.S3Config{
			Endpoint:  cfg.ObjectStore.Endpoint,
			Bucket:    cfg.ObjectStore.Bucket,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			UseSSL:    cfg.ObjectStore.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown object store backend %q", cfg.ObjectStore.Backend)
	}
}

func (e *Engine) retryLimit() int {
	if limit := e.cfg.Orchestrator.WorkItemRetryLimit; limit > 0 {
		return limit
	}
	return 0
}

func (e *Engine) previewThreshold() int {
	return e.cfg.Orchestrator.PreviewThreshold
}

func (e *Engine) catalogPageSize() int {
	if size := e.cfg.Catalog.PageSize; size > 0 {
		return size
	}
	return defaultCatalogPageSize
}

func (e *Engine) claimTimeout() time.Duration {
	if seconds := e.cfg.Orchestrator.ClaimTimeout; seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultClaimTimeout
}

// ResolvePage normalizes a caller-supplied page to the bounds the list
// queries enforce: the configured default when no limit is given, capped at
// the configured maximum. Callers building pagination links need the
// resolved values, so this is part of the engine's surface.
func (e *Engine) ResolvePage(page jobs.Page) jobs.Page {
	if page.Limit <= 0 {
		page.Limit = e.cfg.Orchestrator.DefaultPageSize
	}
	if page.Limit <= 0 {
		page.Limit = defaultPageLimit
	}
	if max := e.cfg.Orchestrator.MaxPageSize; max > 0 && page.Limit > max {
		page.Limit = max
	}
	if page.Offset < 0 {
		page.Offset = 0
	}
	return page
}

// notifyReady signals the executor that a service has claimable work. The
// signal is advisory; polling workers find the items either way.
func (e *Engine) notifyReady(ctx context.Context, requestID, serviceID string, count int) {
	if count <= 0 {
		return
	}
	err := e.executor.Dispatch(ctx, executor.Notice{JobID: requestID, ServiceID: serviceID, ReadyCount: count})
	if err != nil {
		e.logger.Warn("work dispatch signal failed",
			logging.String(logging.FieldJobID, requestID),
			logging.String(logging.FieldService, serviceID),
			logging.Error(err))
	}
}

func (e *Engine) notifyTerminate(ctx context.Context, requestID string) {
	if err := e.executor.Terminate(ctx, requestID); err != nil {
		e.logger.Warn("job terminate signal failed",
			logging.String(logging.FieldJobID, requestID),
			logging.Error(err))
	}
}
