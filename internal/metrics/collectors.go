package metrics

import (
	"context"
	"time"

	"tradinglab/pkg/logger"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// CustomCollector collects fleet-wide metrics from the databases
type CustomCollector struct {
	log      *logger.Logger
	postgres *sqlx.DB
	redis    *redis.Client

	// Descriptors
	totalAccounts     *prometheus.Desc
	connectedAccounts *prometheus.Desc
	onboardingStates  *prometheus.Desc
}

// NewCustomCollector creates a new custom metrics collector
func NewCustomCollector(log *logger.Logger, postgres *sqlx.DB, redis *redis.Client) *CustomCollector {
	return &CustomCollector{
		log:      log,
		postgres: postgres,
		redis:    redis,

		totalAccounts: prometheus.NewDesc(
			"tradinglab_total_accounts",
			"Total number of registered accounts by role",
			[]string{"role"}, nil,
		),
		connectedAccounts: prometheus.NewDesc(
			"tradinglab_connected_accounts",
			"Number of currently connected accounts by broker",
			[]string{"broker"}, nil,
		),
		onboardingStates: prometheus.NewDesc(
			"tradinglab_onboarding_states",
			"Number of onboarding sessions currently persisted",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalAccounts
	ch <- c.connectedAccounts
	ch <- c.onboardingStates
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectAccountStats(ctx, ch)
	c.collectConnectionStats(ctx, ch)
	c.collectOnboardingStates(ctx, ch)
}

func (c *CustomCollector) collectAccountStats(ctx context.Context, ch chan<- prometheus.Metric) {
	type AccountStat struct {
		Role  string `db:"role"`
		Count int    `db:"count"`
	}

	var stats []AccountStat
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT role, COUNT(*) as count
		FROM accounts
		GROUP BY role
	`)
	if err != nil {
		c.log.Error("Failed to collect account stats", "error", err)
		return
	}

	for _, stat := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.totalAccounts,
			prometheus.GaugeValue,
			float64(stat.Count),
			stat.Role,
		)
	}
}

func (c *CustomCollector) collectConnectionStats(ctx context.Context, ch chan<- prometheus.Metric) {
	type ConnectionStat struct {
		Broker string `db:"broker"`
		Count  int    `db:"count"`
	}

	var stats []ConnectionStat
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT broker, COUNT(*) as count
		FROM accounts
		WHERE connected = true
		GROUP BY broker
	`)
	if err != nil {
		c.log.Error("Failed to collect connection stats", "error", err)
		return
	}

	for _, stat := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.connectedAccounts,
			prometheus.GaugeValue,
			float64(stat.Count),
			stat.Broker,
		)
	}
}

func (c *CustomCollector) collectOnboardingStates(ctx context.Context, ch chan<- prometheus.Metric) {
	var count int64
	iter := c.redis.Scan(ctx, 0, "onboarding:*", 1000).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		c.log.Error("Failed to collect onboarding state count", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.onboardingStates,
		prometheus.GaugeValue,
		float64(count),
	)
}

// RegisterCustomCollector registers the custom collector
func RegisterCustomCollector(collector *CustomCollector) {
	prometheus.MustRegister(collector)
}
