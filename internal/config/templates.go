package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Market Sentinel Configuration

[engine]
# Instrument universe evaluated each cycle
instruments = ["AAPL", "GOOGL", "MSFT"]
# Concurrent instrument workers per cycle
workers = 4
# Deadline for a full evaluation cycle
cycle_deadline = "2m"
# Page size for alert queries
query_page_size = 10

[signal]
# Composite weights; must sum to 1. When no sentiment data exists for the
# lookback window, full weight shifts to price.
price_weight = 0.5
sentiment_weight = 0.5
# Sentiment observation lookback window
sentiment_lookback = "24h"
# Expected ingestion cadence; prices older than twice this are a data gap
ingestion_interval = "5m"
# Minimum sentiment samples before the window counts as present
min_sentiment_samples = 1

[notifications]
enabled = true
# Delivery attempts per channel before giving up
max_attempts = 3
# Exponential backoff between attempts: base * 2^attempt, capped
backoff_base = "500ms"
backoff_cap = "30s"
# Per-attempt provider timeout; timeouts are retried as transient failures
send_timeout = "5s"

[notifications.email]
enabled = false
smtp_host = ""
smtp_port = 587
username = ""
password = ""
from = ""
to = ""

[notifications.sms]
enabled = false
api_base_url = ""
account_sid = ""
auth_token = ""
from = ""
to = ""

[notifications.webhook]
enabled = false
url = ""

[storage]
# SQLite database shared with the ingestion collaborator. Defaults to
# sentinel.db inside the config directory when unset.
# db_path = "/var/lib/sentinel/sentinel.db"
`

const rulesTemplate = `# Market Sentinel Alert Rules
#
# Each [[rules]] block defines one alert condition. instrument may be a
# single symbol or "*" for every instrument in the universe.

[[rules]]
id = "price-spike"
instrument = "*"
metric = "price"
comparator = "gte"
threshold = 0.05
# Compare |price_component| so spikes in either direction fire
absolute = true
cooldown = "10m"
severity = "critical"
channels = ["email", "sms"]

[[rules]]
id = "negative-sentiment"
instrument = "*"
metric = "sentiment"
comparator = "lte"
threshold = -0.3
cooldown = "1h"
severity = "warning"
channels = ["email"]
`

func writeTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

func writeTemplateRules(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "rules.toml")
	if err := os.WriteFile(path, []byte(rulesTemplate), 0644); err != nil {
		return fmt.Errorf("writing rules template: %w", err)
	}

	return nil
}
