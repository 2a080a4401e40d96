package config

const (
	defaultDataDir            = "~/.local/share/strata"
	defaultSpoolDir           = "~/.local/share/strata/spool"
	defaultLogDir             = "~/.local/share/strata/logs"
	defaultAPIBind            = "127.0.0.1:7644"
	defaultDatabaseDriver     = "sqlite"
	defaultMaxOpenConns       = 10
	defaultMaxIdleConns       = 5
	defaultCatalogPageSize    = 2000
	defaultCatalogTimeout     = 60
	defaultObjectStoreBackend = "fs"
	defaultExecutorKind       = "none"
	defaultExecutorTimeout    = 10
	defaultPreviewThreshold   = 500
	defaultRetryLimit         = 3
	defaultPageSize           = 10
	defaultMaxPageSize        = 2000
	defaultClaimTimeout       = 1800
	defaultReclaimInterval    = 60
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			SpoolDir: defaultSpoolDir,
			LogDir:   defaultLogDir,
		},
		Server: Server{
			Bind: defaultAPIBind,
		},
		Database: Database{
			Driver:       defaultDatabaseDriver,
			MaxOpenConns: defaultMaxOpenConns,
			MaxIdleConns: defaultMaxIdleConns,
		},
		Catalog: Catalog{
			PageSize:       defaultCatalogPageSize,
			RequestTimeout: defaultCatalogTimeout,
		},
		ObjectStore: ObjectStore{
			Backend: defaultObjectStoreBackend,
		},
		Executor: Executor{
			Kind:           defaultExecutorKind,
			RequestTimeout: defaultExecutorTimeout,
		},
		Orchestrator: Orchestrator{
			PreviewThreshold:   defaultPreviewThreshold,
			WorkItemRetryLimit: defaultRetryLimit,
			DefaultPageSize:    defaultPageSize,
			MaxPageSize:        defaultMaxPageSize,
			ClaimTimeout:       defaultClaimTimeout,
			ReclaimInterval:    defaultReclaimInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
