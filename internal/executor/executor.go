// Package executor signals external workflow runtimes. Dispatch tells a
// runtime that claimable work exists for a service; Terminate tells it to
// stop scheduling workers for a job. Both are advisory: workers discover the
// truth by polling the orchestrator.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Notice announces claimable work for one service of one job.
type Notice struct {
	JobID      string `json:"jobID"`
	ServiceID  string `json:"serviceID"`
	ReadyCount int    `json:"readyCount,omitempty"`
}

// Executor is the boundary to an external workflow runtime.
type Executor interface {
	Dispatch(ctx context.Context, notice Notice) error
	Terminate(ctx context.Context, jobID string) error
}

// Config selects and parameterizes a backend.
type Config struct {
	Kind           string
	Endpoint       string
	AMQPURL        string
	Exchange       string
	RequestTimeout time.Duration
}

// New builds the backend named by cfg.Kind: "none", "http", or "amqp".
func New(cfg Config, logger *slog.Logger) (Executor, error) {
	switch strings.TrimSpace(cfg.Kind) {
	case "", "none":
		return Noop{}, nil
	case "http":
		return NewWebhook(cfg.Endpoint, cfg.RequestTimeout)
	case "amqp":
		return NewAMQP(cfg.AMQPURL, cfg.Exchange, logger)
	default:
		return nil, fmt.Errorf("executor: unknown kind %q", cfg.Kind)
	}
}

// Noop ignores every signal. The default for polling-only deployments.
type Noop struct{}

func (Noop) Dispatch(ctx context.Context, notice Notice) error { return nil }

func (Noop) Terminate(ctx context.Context, jobID string) error { return nil }
