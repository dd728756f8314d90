// Package dashboard turns warehouse tables into the page's view model.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/resultsdash/internal/config"
	"github.com/TobiSchelling/resultsdash/internal/warehouse"
)

// Runner returns the result of a query, possibly from cache.
type Runner interface {
	Run(ctx context.Context, queryText string) (*warehouse.Table, error)
}

// View is everything one render pass shows.
type View struct {
	Title    string
	Subtitle string

	Cards    []Card
	Chart    BarChart
	Panels   []Panel
	Progress Progress
	Audit    *warehouse.Table

	// DataAsOf is the oldest fetch time among the tables shown.
	DataAsOf time.Time
}

// Builder assembles a View from the configured queries.
type Builder struct {
	runner Runner
	cfg    config.Dashboard
	logger *zap.SugaredLogger
}

// NewBuilder creates a view builder.
func NewBuilder(runner Runner, cfg config.Dashboard, logger *zap.SugaredLogger) *Builder {
	return &Builder{runner: runner, cfg: cfg, logger: logger}
}

// Build runs the impact and policy queries in page order and maps them onto
// the view. The first failure aborts the pass; no partial view is returned.
func (b *Builder) Build(ctx context.Context) (*View, error) {
	impactTable, err := b.runner.Run(ctx, b.cfg.Queries.Impact)
	if err != nil {
		return nil, fmt.Errorf("loading impact trends: %w", err)
	}
	trends, err := DecodeImpactTrends(impactTable)
	if err != nil {
		return nil, err
	}
	cards, err := BindCards(trends, b.cfg.KPI, b.logger)
	if err != nil {
		return nil, err
	}

	policyTable, err := b.runner.Run(ctx, b.cfg.Queries.Policy)
	if err != nil {
		return nil, fmt.Errorf("loading policy tracker: %w", err)
	}
	policy, err := DecodePolicyTracker(policyTable)
	if err != nil {
		return nil, err
	}

	// The audit region reads the same query text, so it is a cache hit
	// unless the entry expired in between.
	audit, err := b.runner.Run(ctx, b.cfg.Queries.Policy)
	if err != nil {
		return nil, fmt.Errorf("loading audit table: %w", err)
	}

	asOf := impactTable.FetchedAt
	if policyTable.FetchedAt.Before(asOf) {
		asOf = policyTable.FetchedAt
	}

	return &View{
		Title:    b.cfg.Title,
		Subtitle: b.cfg.Subtitle,
		Cards:    cards,
		Chart:    NewBarChart(policy, b.cfg.Chart.Height),
		Panels:   newPanels(b.cfg.Status.Panels),
		Progress: newProgress(b.cfg.Status.Progress),
		Audit:    audit,
		DataAsOf: asOf,
	}, nil
}
