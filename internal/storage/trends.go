package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// TrendReader provides read access to the guardrail_events_analytics table
// for long-horizon trend queries that would be too heavy for the Postgres
// audit store.
type TrendReader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewTrendReader opens a ClickHouse connection for read queries.
func NewTrendReader(dsn string, logger *zap.Logger) (*TrendReader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewTrendReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewTrendReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewTrendReader: %w", err)
	}

	return &TrendReader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *TrendReader) Close() error {
	return r.conn.Close()
}

// TrendSummary holds aggregate verdict counts over the window.
type TrendSummary struct {
	TotalEvents int `json:"total_events"`
	Blocks      int `json:"blocks"`
	Modifies    int `json:"modifies"`
	Passes      int `json:"passes"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// CategoryCount holds a flagged category and its count.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// AgentCount holds an agent id and its intervention count.
type AgentCount struct {
	AgentID string `json:"agent_id"`
	Count   int    `json:"count"`
}

// SafetyStats holds overall-safety-score percentiles across the window.
type SafetyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// TrendReport holds all trend aggregations for one query window.
type TrendReport struct {
	Summary          TrendSummary       `json:"summary"`
	BlocksOverTime   []TimeSeriesBucket `json:"blocks_over_time"`
	TopCategories    []CategoryCount    `json:"top_categories"`
	TopFlaggedAgents []AgentCount       `json:"top_flagged_agents"`
	SafetyScores     SafetyStats        `json:"safety_score_percentiles"`
}

// Trends returns aggregated guardrail trends over the given number of days.
func (r *TrendReader) Trends(ctx context.Context, days int) (*TrendReport, error) {
	rangeStart := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	baseArgs := []any{
		clickhouse.Named("range_start", rangeStart),
	}

	result := &TrendReport{}

	// Summary counts
	var total, blocks, modifies, passes uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count() as total, "+
			"countIf(event_type = 'block') as blocks, "+
			"countIf(event_type = 'modify') as modifies, "+
			"countIf(event_type = 'pass') as passes "+
			"FROM guardrail_events_analytics "+
			"WHERE timestamp >= @range_start",
		baseArgs...,
	).Scan(&total, &blocks, &modifies, &passes)
	if err != nil {
		return nil, fmt.Errorf("Trends summary: %w", err)
	}
	result.Summary = TrendSummary{
		TotalEvents: int(total),
		Blocks:      int(blocks),
		Modifies:    int(modifies),
		Passes:      int(passes),
	}

	// Blocks over time (hourly)
	botRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) as hour, count() as count "+
			"FROM guardrail_events_analytics "+
			"WHERE event_type = 'block' AND timestamp >= @range_start "+
			"GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("Trends blocks_over_time: %w", err)
	}
	defer func() { _ = botRows.Close() }()
	for botRows.Next() {
		var hour time.Time
		var count uint64
		if err := botRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("Trends blocks_over_time scan: %w", err)
		}
		result.BlocksOverTime = append(result.BlocksOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	// Top flagged categories across interventions
	catRows, err := r.conn.Query(ctx,
		"SELECT arrayJoin(flagged_categories) as category, count() as count "+
			"FROM guardrail_events_analytics "+
			"WHERE event_type IN ('block', 'modify') "+
			"AND timestamp >= @range_start "+
			"GROUP BY category ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("Trends top_categories: %w", err)
	}
	defer func() { _ = catRows.Close() }()
	for catRows.Next() {
		var cat string
		var count uint64
		if err := catRows.Scan(&cat, &count); err != nil {
			return nil, fmt.Errorf("Trends top_categories scan: %w", err)
		}
		result.TopCategories = append(result.TopCategories, CategoryCount{
			Category: cat, Count: int(count),
		})
	}

	// Safety score percentiles
	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(overall_safety) as p50, "+
			"quantile(0.95)(overall_safety) as p95, "+
			"quantile(0.99)(overall_safety) as p99 "+
			"FROM guardrail_events_analytics "+
			"WHERE timestamp >= @range_start",
		baseArgs...,
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("Trends safety percentiles: %w", err)
	}
	result.SafetyScores = SafetyStats{
		P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
	}

	// Agents whose output was most often blocked or modified
	agentRows, err := r.conn.Query(ctx,
		"SELECT agent_id, count() as count "+
			"FROM guardrail_events_analytics "+
			"WHERE event_type IN ('block', 'modify') "+
			"AND agent_id != '' AND timestamp >= @range_start "+
			"GROUP BY agent_id ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("Trends top_agents: %w", err)
	}
	defer func() { _ = agentRows.Close() }()
	for agentRows.Next() {
		var agent string
		var count uint64
		if err := agentRows.Scan(&agent, &count); err != nil {
			return nil, fmt.Errorf("Trends top_agents scan: %w", err)
		}
		result.TopFlaggedAgents = append(result.TopFlaggedAgents, AgentCount{
			AgentID: agent, Count: int(count),
		})
	}

	// Ensure slices are non-nil for JSON serialization
	if result.BlocksOverTime == nil {
		result.BlocksOverTime = []TimeSeriesBucket{}
	}
	if result.TopCategories == nil {
		result.TopCategories = []CategoryCount{}
	}
	if result.TopFlaggedAgents == nil {
		result.TopFlaggedAgents = []AgentCount{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
