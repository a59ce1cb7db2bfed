// Package cfg holds Herald's application-level configuration.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	EventQueueSize        int
	SlackBotToken         string
	SlackChannel          string
	WebhookToken          string
	PrometheusEndpoint    string
	PrometheusTenantID    string
	ChartDir              string
	BaseURL               string
	ExplorerURL           string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.IntVar(&c.EventQueueSize, "event-queue-size", 64, "capacity of the internal event queue; size above the largest expected webhook batch (1..4096)")
	fs.StringVar(&c.SlackBotToken, "slack-bot-token", "", "Slack bot token used to post and update alert messages")
	fs.StringVar(&c.SlackChannel, "slack-channel", "", "Slack channel ID to post alert messages to")
	fs.StringVar(&c.WebhookToken, "webhook-token", "", "bearer token required on webhook requests (empty = no auth)")
	fs.StringVar(&c.PrometheusEndpoint, "prometheus-endpoint", "", "Prometheus endpoint for SLO chart queries")
	fs.StringVar(&c.PrometheusTenantID, "prometheus-tenant-id", "", "Prometheus tenant ID for multi-tenant setups")
	fs.StringVar(&c.ChartDir, "chart-dir", "charts", "directory where rendered chart images are stored")
	fs.StringVar(&c.BaseURL, "base-url", "", "externally reachable base URL of this service, used for chart image links")
	fs.StringVar(&c.ExplorerURL, "explorer-url", "", "base URL of the metrics explorer linked from Slack messages (empty = no link)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.EventQueueSize <= 0 || c.EventQueueSize > 4096 {
		errs = append(errs, fmt.Errorf("invalid EVENT_QUEUE_SIZE %d (must be 1..4096)", c.EventQueueSize))
	}

	if c.SlackBotToken == "" {
		errs = append(errs, errors.New("SLACK_BOT_TOKEN is required"))
	}
	if c.SlackChannel == "" {
		errs = append(errs, errors.New("SLACK_CHANNEL is required"))
	}

	// Prometheus endpoint is required for SLO chart generation
	if c.PrometheusEndpoint == "" {
		errs = append(errs, errors.New("PROMETHEUS_ENDPOINT is required"))
	}

	if c.ChartDir == "" {
		errs = append(errs, errors.New("CHART_DIR is required"))
	}

	if c.BaseURL == "" {
		errs = append(errs, errors.New("BASE_URL is required"))
	} else if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid BASE_URL %q (must be an absolute URL)", c.BaseURL))
	}

	if c.ExplorerURL != "" {
		if u, err := url.Parse(c.ExplorerURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid EXPLORER_URL %q (must be an absolute URL)", c.ExplorerURL))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
