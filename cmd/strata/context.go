package main

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"strata/internal/client"
	"strata/internal/config"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string
	userFlag   *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(apiFlag, configFlag, userFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
		userFlag:   userFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// apiBase resolves the daemon endpoint: explicit flag, then the STRATA_API
// environment variable, then the configured bind address.
func (c *commandContext) apiBase() string {
	if c.apiFlag != nil {
		if base := strings.TrimSpace(*c.apiFlag); base != "" {
			return base
		}
	}
	if base := strings.TrimSpace(os.Getenv("STRATA_API")); base != "" {
		return base
	}
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		return strings.TrimSpace(cfg.Server.Bind)
	}
	return ""
}

// username resolves the acting user: explicit flag, then the OS account.
func (c *commandContext) username() string {
	if c.userFlag != nil {
		if name := strings.TrimSpace(*c.userFlag); name != "" {
			return name
		}
	}
	if current, err := user.Current(); err == nil && current.Username != "" {
		return current.Username
	}
	return strings.TrimSpace(os.Getenv("USER"))
}

func (c *commandContext) withClient(fn func(*client.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	base := c.apiBase()
	apiClient, err := client.New(client.Config{
		BaseURL:  base,
		Token:    cfg.Server.APIToken,
		Username: c.username(),
	})
	if err != nil {
		return err
	}
	if err := fn(apiClient); err != nil {
		return wrapDaemonError(err, base)
	}
	return nil
}

// wrapDaemonError turns connection refusals into a hint to start the daemon.
func wrapDaemonError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("stratad at %s refused the connection; verify the daemon is running", base)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
