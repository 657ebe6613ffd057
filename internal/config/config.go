// Package config loads and validates the bridge's YAML configuration file.
//
// The file is shaped like the original bridge's: a single `main` section
// holding every setting named in the system's external-interface contract.
// Parsing and storage of the file itself are a boundary concern, not part
// of the bridge core, but something has to turn it into a typed Config the
// core can use — that is this package's entire job.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigError is returned for any invalid or missing required setting.
// It is fatal at startup: main() reports it and exits non-zero.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...any) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// Config is the fully-resolved set of settings the bridge runs with,
// defaults already applied.
type Config struct {
	ResourcesAPIServer  string
	ResourcesAPIVersion string
	Resource            string
	CouchURL            string
	PublicDB            string
	LogsDB              string

	WorkersMin          int
	WorkersMax          int
	RetryWorkersMin     int
	RetryWorkersMax     int
	FilterWorkersCount  int
	WatchInterval       time.Duration
	ResourceItemsLimit  int
	PrimaryQueueSize    int // -1 means unbounded
	RetryQueueSize      int // -1 means unbounded
	WorkersIncThreshold float64
	WorkersDecThreshold float64
	QueuesControllerTick time.Duration

	ClientIncStep              time.Duration
	ClientDecStep               time.Duration
	DropThresholdClientCookies int
	WorkerSleep                 time.Duration
	RetryDefaultTimeout         time.Duration
	RetriesCount                int
	QueueTimeout                time.Duration
	UserAgent                   string

	RetrieversParams map[string]any
}

// rawDoc mirrors the YAML shape: a top-level `main` section containing
// everything else. Any other top-level key is ignored by the decoder.
type rawDoc struct {
	Main map[string]any `yaml:"main"`
}

// Load reads path, validates it, applies defaults, and honors the DB_NAME
// environment override for public_db.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrorf("reading config file: %v", err)
	}

	var doc rawDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, configErrorf("parsing config file: %v", err)
	}
	if doc.Main == nil {
		return nil, configErrorf("config dictionary missing section 'main'")
	}

	get := func(key string) any { return doc.Main[key] }

	apiServer, _ := get("resources_api_server").(string)
	if !validAPIServer(apiServer) {
		return nil, configErrorf("invalid or missing 'resources_api_server' url")
	}

	resource := stringOr(get("resource"), "tenders")

	cfg := &Config{
		ResourcesAPIServer:  apiServer,
		ResourcesAPIVersion: stringOr(get("resources_api_version"), "2.5"),
		Resource:            resource,
		CouchURL:            stringOr(get("couch_url"), "http://127.0.0.1:5984"),
		PublicDB:            stringOr(get("public_db"), "edge_db"),
		LogsDB:              stringOr(get("logs_db"), "logs_db"),

		WorkersMin:         intOr(get("workers_min"), 1),
		WorkersMax:         intOr(get("workers_max"), 3),
		RetryWorkersMin:    intOr(get("retry_workers_min"), 1),
		RetryWorkersMax:    intOr(get("retry_workers_max"), 2),
		FilterWorkersCount: intOr(get("filter_workers_count"), 1),
		WatchInterval:      durationSecondsOr(get("watch_interval"), 10*time.Second),

		ResourceItemsLimit:   intOr(get("resource_items_limit"), 100),
		PrimaryQueueSize:     intOr(get("resource_items_queue_size"), 102),
		RetryQueueSize:       intOr(get("retry_resource_items_queue_size"), -1),
		WorkersIncThreshold:  floatOr(get("workers_inc_threshold"), 90),
		WorkersDecThreshold:  floatOr(get("workers_dec_threshold"), 30),
		QueuesControllerTick: durationSecondsOr(get("queues_controller_timeout"), 60*time.Second),

		ClientIncStep:              durationFloatSecondsOr(get("client_inc_step_timeout"), 100*time.Millisecond),
		ClientDecStep:               durationFloatSecondsOr(get("client_dec_step_timeout"), 20*time.Millisecond),
		DropThresholdClientCookies: intOr(get("drop_threshold_client_cookies"), 2),
		WorkerSleep:                 durationSecondsOr(get("worker_sleep"), 5*time.Second),
		RetryDefaultTimeout:         durationSecondsOr(get("retry_default_timeout"), 5*time.Second),
		RetriesCount:                intOr(get("retries_count"), 10),
		QueueTimeout:                durationSecondsOr(get("queue_timeout"), 3*time.Second),
		UserAgent:                   stringOr(get("user_agent"), "edge_"+resource+".client"),
	}

	if params, ok := get("retrievers_params").(map[string]any); ok {
		cfg.RetrieversParams = params
	}

	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.PublicDB = dbName
	}

	return cfg, nil
}

func validAPIServer(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func intOr(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func floatOr(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

// durationSecondsOr interprets a bare numeric YAML value as whole seconds,
// matching the original bridge's convention of plain-number interval
// settings (e.g. watch_interval: 10).
func durationSecondsOr(v any, def time.Duration) time.Duration {
	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Second
	case float64:
		return time.Duration(n * float64(time.Second))
	default:
		return def
	}
}

// durationFloatSecondsOr is for the sub-second pacing settings
// (client_inc_step_timeout etc.) which are specified as fractional seconds.
func durationFloatSecondsOr(v any, def time.Duration) time.Duration {
	switch n := v.(type) {
	case float64:
		return time.Duration(n * float64(time.Second))
	case int:
		return time.Duration(n) * time.Second
	default:
		return def
	}
}
