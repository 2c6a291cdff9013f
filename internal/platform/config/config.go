package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// UpdatePolicy controls when quota rows of one resource kind are
// recomputed. Event-driven and periodic updates compose independently
// so deployments can disable either without double work.
type UpdatePolicy struct {
	OnTermination bool `yaml:"on_termination"`
	Periodic      bool `yaml:"periodic"`
}

// Config is the full configuration surface of the persistence layer.
type Config struct {
	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	// DBSchema is the dedicated namespace all tables live under, so the
	// layer can co-locate with a host application's own tables.
	DBSchema string `yaml:"db_schema"`

	// DefaultQuotaResources maps resource kind to the catalog name of
	// the default resource for that kind.
	DefaultQuotaResources map[domain.ResourceKind]string `yaml:"default_quota_resources"`
	// DefaultQuotaLimits maps resource kind to the limit seeded on new
	// users. Zero means unlimited.
	DefaultQuotaLimits map[domain.ResourceKind]int64 `yaml:"default_quota_limits"`

	QuotaUpdatePolicy map[domain.ResourceKind]UpdatePolicy `yaml:"quota_update_policy"`
	HealthThresholds  domain.HealthThresholds              `yaml:"health_thresholds"`

	MaxConcurrentWorkflows int `yaml:"max_concurrent_workflows"`
	QueueMaxPriority       int `yaml:"queue_max_priority"`

	// KeepAliveStatuses lists run status names whose backing jobs are
	// kept alive after termination. Validated at load time; unknown
	// names are warned about and discarded.
	KeepAliveStatuses []string `yaml:"keep_alive_statuses"`

	WorkspaceRoot string `yaml:"workspace_root"`
	TokenSecret   string `yaml:"token_secret"`

	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`
}

// Load builds configuration from environment variables, with an
// optional YAML file override pointed at by SCIFLOW_CONFIG_FILE.
func Load(log *logger.Logger) (*Config, error) {
	cfg := &Config{
		DBHost:     getEnv("SCIFLOW_DB_HOST", "localhost", log),
		DBPort:     getEnv("SCIFLOW_DB_PORT", "5432", log),
		DBUser:     getEnv("SCIFLOW_DB_USER", "sciflow", log),
		DBPassword: getEnv("SCIFLOW_DB_PASSWORD", "", log),
		DBName:     getEnv("SCIFLOW_DB_NAME", "sciflow", log),
		DBSchema:   getEnv("SCIFLOW_DB_SCHEMA", "_sciflow", log),

		DefaultQuotaResources: map[domain.ResourceKind]string{
			domain.ResourceKindCPU:  getEnv("SCIFLOW_DEFAULT_CPU_RESOURCE", "processing-cpu", log),
			domain.ResourceKindDisk: getEnv("SCIFLOW_DEFAULT_DISK_RESOURCE", "shared-disk", log),
		},
		DefaultQuotaLimits: map[domain.ResourceKind]int64{
			domain.ResourceKindCPU:  getEnvInt64("SCIFLOW_DEFAULT_CPU_LIMIT", 0, log),
			domain.ResourceKindDisk: getEnvInt64("SCIFLOW_DEFAULT_DISK_LIMIT", 0, log),
		},
		QuotaUpdatePolicy: map[domain.ResourceKind]UpdatePolicy{
			domain.ResourceKindCPU:  {OnTermination: true, Periodic: true},
			domain.ResourceKindDisk: {OnTermination: true, Periodic: true},
		},
		HealthThresholds: domain.DefaultHealthThresholds,

		MaxConcurrentWorkflows: getEnvInt("SCIFLOW_MAX_CONCURRENT_WORKFLOWS", 30, log),
		QueueMaxPriority:       getEnvInt("SCIFLOW_QUEUE_MAX_PRIORITY", 100, log),

		KeepAliveStatuses: splitList(getEnv("SCIFLOW_KEEP_ALIVE_STATUSES", "", log)),

		WorkspaceRoot: getEnv("SCIFLOW_WORKSPACE_ROOT", "/var/sciflow", log),
		TokenSecret:   getEnv("SCIFLOW_TOKEN_SECRET", "", log),

		RedisAddr:    getEnv("SCIFLOW_REDIS_ADDR", "", log),
		RedisChannel: getEnv("SCIFLOW_REDIS_CHANNEL", "quota-events", log),
	}

	if file := strings.TrimSpace(os.Getenv("SCIFLOW_CONFIG_FILE")); file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", file, err)
		}
	}

	cfg.KeepAliveStatuses = validateKeepAlive(cfg.KeepAliveStatuses, log)
	return cfg, nil
}

// DSN renders the Postgres connection string. The schema rides along
// as the search_path runtime parameter so every pooled connection
// resolves unqualified table names inside it.
func (c *Config) DSN() string {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
	if c.DBSchema != "" {
		dsn += "&search_path=" + url.QueryEscape(c.DBSchema)
	}
	return dsn
}

// EventDriven reports whether the kind participates in event-driven
// quota updates at run termination.
func (c *Config) EventDriven(kind domain.ResourceKind) bool {
	return c.QuotaUpdatePolicy[kind].OnTermination
}

// Periodic reports whether the kind participates in periodic batch
// quota recomputation.
func (c *Config) Periodic(kind domain.ResourceKind) bool {
	return c.QuotaUpdatePolicy[kind].Periodic
}

// validateKeepAlive computes the set difference against known status
// names once, warns on every unknown name, and keeps the valid subset.
func validateKeepAlive(names []string, log *logger.Logger) []string {
	known := map[string]bool{}
	for _, n := range domain.KnownRunStatusNames() {
		known[n] = true
	}
	valid := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !known[n] {
			if log != nil {
				log.Warn("Ignoring unknown keep-alive status", "status", n)
			}
			continue
		}
		valid = append(valid, n)
	}
	return valid
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultVal string, log *logger.Logger) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	if log != nil {
		log.Debug("Environment variable found, using environment", "env_var", key)
	}
	return val
}

func getEnvInt(key string, defaultVal int, log *logger.Logger) int {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as int, using default",
				"env_var", key, "value", valStr, "default", defaultVal)
		}
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64, log *logger.Logger) int64 {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	i, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as int, using default",
				"env_var", key, "value", valStr, "default", defaultVal)
		}
		return defaultVal
	}
	return i
}
