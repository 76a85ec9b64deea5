// Package handler dispatches inventory actions: collect the fleet,
// analyze cost, check security posture, clean out stale records. It is
// the shared entry point for the CLI commands and the daemon loop.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yairfalse/kerava/collector"
	"github.com/yairfalse/kerava/config"
	"github.com/yairfalse/kerava/notify"
	"github.com/yairfalse/kerava/query"
	"github.com/yairfalse/kerava/storage"
	"github.com/yairfalse/kerava/telemetry"
	"github.com/yairfalse/kerava/types"
)

// Actions the handler understands.
const (
	ActionCollect       = "collect"
	ActionCostAnalysis  = "cost_analysis"
	ActionSecurityCheck = "security_check"
	ActionCleanup       = "cleanup"
)

// Request selects an action and its parameters.
type Request struct {
	Action string             `json:"action"`
	Days   int                `json:"days,omitempty"`
	TopN   int                `json:"top_n,omitempty"`
	Filter types.RecordFilter `json:"filter,omitempty"`
}

// Response carries the result of one action. Only the field matching
// the action is populated.
type Response struct {
	Action   string            `json:"action"`
	Status   string            `json:"status"`
	Report   *types.RunReport  `json:"report,omitempty"`
	Cost     *query.CostReport `json:"cost,omitempty"`
	Findings []query.Finding   `json:"findings,omitempty"`
	Removed  int               `json:"removed,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// Collector runs collection passes.
type Collector interface {
	Run(ctx context.Context, accounts []types.Account, cfg collector.RunConfig) (*types.RunReport, error)
}

// StoreAdmin is the store maintenance surface the handler needs.
type StoreAdmin interface {
	Prune(cutoff time.Time) (int, error)
	Stats() storage.Stats
}

// Handler wires the pipeline pieces behind the action dispatch.
type Handler struct {
	cfg       *config.Config
	collector Collector
	queries   *query.Engine
	store     StoreAdmin
	notifier  notify.Notifier
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a handler.
func New(cfg *config.Config, c Collector, queries *query.Engine, store StoreAdmin, notifier notify.Notifier, metrics *telemetry.Metrics, logger zerolog.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		collector: c,
		queries:   queries,
		store:     store,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle runs one action.
func (h *Handler) Handle(ctx context.Context, req Request) (*Response, error) {
	switch req.Action {
	case ActionCollect:
		return h.collect(ctx)
	case ActionCostAnalysis:
		return h.costAnalysis(ctx, req)
	case ActionSecurityCheck:
		return h.securityCheck(ctx, req)
	case ActionCleanup:
		return h.cleanup(ctx, req)
	default:
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}
}

func (h *Handler) collect(ctx context.Context) (*Response, error) {
	report, err := h.collector.Run(ctx, h.cfg.EnabledAccounts(), RunConfigFrom(h.cfg))
	if err != nil {
		return nil, err
	}

	h.metrics.RecordRun(ctx, report)

	status := "ok"
	if report.TasksFailed > 0 {
		status = "partial"
	}

	subject, message := notify.RunSummary(report)
	h.send(ctx, subject, message)

	return &Response{Action: ActionCollect, Status: status, Report: report}, nil
}

func (h *Handler) costAnalysis(ctx context.Context, req Request) (*Response, error) {
	topN := req.TopN
	if topN <= 0 {
		topN = 10
	}

	report, err := h.queries.CostReport(req.Filter, topN)
	if err != nil {
		return nil, err
	}

	threshold := h.cfg.CostThresholds.MonthlyAlert
	if threshold > 0 && report.TotalMonthly > threshold {
		subject, message := notify.CostAlert(report.TotalMonthly, threshold)
		h.send(ctx, subject, message)
	}

	return &Response{Action: ActionCostAnalysis, Status: "ok", Cost: report}, nil
}

func (h *Handler) securityCheck(ctx context.Context, req Request) (*Response, error) {
	findings, err := h.queries.Security(req.Filter)
	if err != nil {
		return nil, err
	}

	if len(findings) > 0 {
		subject := fmt.Sprintf("Security check: %d findings", len(findings))
		message := ""
		for _, f := range findings {
			message += fmt.Sprintf("%s %s/%s (%s): %s\n",
				f.Severity, f.Record.ResourceType, f.Record.ResourceID, f.Record.AccountID, f.Issue)
		}
		h.send(ctx, subject, message)
	}

	return &Response{Action: ActionSecurityCheck, Status: "ok", Findings: findings}, nil
}

func (h *Handler) cleanup(ctx context.Context, req Request) (*Response, error) {
	days := req.Days
	if days <= 0 {
		days = h.cfg.CostThresholds.StaleDays
	}
	cutoff := h.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	removed, err := h.store.Prune(cutoff)
	if err != nil {
		return nil, err
	}

	h.logger.Info().Int("removed", removed).Int("days", days).Msg("cleanup finished")

	return &Response{
		Action:  ActionCleanup,
		Status:  "ok",
		Removed: removed,
		Message: fmt.Sprintf("removed %d records not collected in the last %d days", removed, days),
	}, nil
}

// send delivers a notification without failing the action.
func (h *Handler) send(ctx context.Context, subject, message string) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(ctx, subject, message); err != nil {
		h.logger.Warn().Err(err).Str("subject", subject).Msg("notification failed")
	}
}

// RunConfigFrom maps the file config to a run config.
func RunConfigFrom(cfg *config.Config) collector.RunConfig {
	return collector.RunConfig{
		Regions:         cfg.Regions,
		ExcludedRegions: cfg.ExcludedRegions,
		ResourceTypes:   cfg.ResourceTypes,
		Parallelism:     cfg.Collection.Parallelism,
		RetryAttempts:   cfg.Collection.RetryAttempts,
		BatchSize:       cfg.Collection.BatchSize,
		Timeout:         cfg.Collection.Timeout,
	}
}
