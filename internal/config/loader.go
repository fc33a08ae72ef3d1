package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "HUNTD"

var (
	configMu  sync.Mutex
	appConfig *Config
)

// envSpec maps one environment variable onto a config path.
type envSpec struct {
	Name string
	Path string
}

func getEnvSpecs() []envSpec {
	return []envSpec{
		{Name: "HUNTD_HOST", Path: "server.host"},
		{Name: "HUNTD_PORT", Path: "server.port"},
		{Name: "HUNTD_READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: "HUNTD_WRITE_TIMEOUT", Path: "server.write_timeout"},
		{Name: "HUNTD_IDLE_TIMEOUT", Path: "server.idle_timeout"},
		{Name: "HUNTD_SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: "HUNTD_LOG_LEVEL", Path: "logging.level"},
		{Name: "HUNTD_LOG_PROFILE", Path: "logging.profile"},
		{Name: "HUNTD_WORKER_PYTHON", Path: "worker.python"},
		{Name: "HUNTD_WORKER_SCRIPT", Path: "worker.script"},
		{Name: "HUNTD_WORKER_DIR", Path: "worker.dir"},
		{Name: "HUNTD_STORAGE_BACKEND", Path: "storage.backend"},
		{Name: "HUNTD_DATA_DIR", Path: "storage.data_dir"},
		{Name: "HUNTD_REDIS_URL", Path: "storage.redis_url"},
		{Name: "HUNTD_RETENTION_DAYS", Path: "storage.retention_days"},
		{Name: "HUNTD_SYNC_URL", Path: "storage.sync_url"},
		{Name: "HUNTD_BRIDGE_URL", Path: "handshake.bridge_url"},
		{Name: "HUNTD_DRAFT_API_URL", Path: "drafts.api_url"},
		{Name: "HUNTD_DRAFT_DB_PATH", Path: "drafts.db_path"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("worker.python", "python3")
	v.SetDefault("worker.script", "job_hunter.py")
	v.SetDefault("worker.dir", "")
	v.SetDefault("worker.process_name", "job_hunter.py")

	v.SetDefault("search.keywords", "")
	v.SetDefault("search.location", "")
	v.SetDefault("search.remote", false)
	v.SetDefault("search.max_jobs", 15)
	v.SetDefault("search.max_age_days", 30)
	v.SetDefault("search.exclude_url_patterns", []string{})

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.data_dir", defaultDataDir())
	v.SetDefault("storage.redis_url", "redis://localhost:6379/0")
	v.SetDefault("storage.retention_days", 7)
	v.SetDefault("storage.sweep_interval_hours", 1)
	v.SetDefault("storage.sync_url", "")

	v.SetDefault("handshake.bridge_url", "http://localhost:8000")
	v.SetDefault("handshake.fallback_dir", "")

	v.SetDefault("drafts.api_url", "")
	v.SetDefault("drafts.db_path", filepath.Join(defaultDataDir(), "drafts.db"))

	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

func defaultDataDir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "huntd")
	}
	return filepath.Join(os.TempDir(), "huntd")
}

// Load builds the configuration. Optional override maps are applied last and
// win over environment variables and file values. The loaded config is also
// cached for GetConfig.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A .env alongside the binary is developer convenience, never required.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("huntd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, dir := range getUserConfigPaths() {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errorsAs(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	for _, override := range overrides {
		if err := v.MergeConfigMap(override); err != nil {
			return nil, fmt.Errorf("apply runtime overrides: %w", err)
		}
		// MergeConfigMap sits below env in viper's precedence; re-apply
		// overrides as explicit sets so runtime always wins.
		applyOverrideSet(v, "", override)
	}

	cfg := &Config{}
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	configMu.Lock()
	appConfig = cfg
	configMu.Unlock()

	return cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil before
// the first Load.
func GetConfig() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	return appConfig
}

func getUserConfigPaths() []string {
	var paths []string
	if base, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(base, "huntd"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".huntd"))
	}
	return paths
}

func applyOverrideSet(v *viper.Viper, prefix string, m map[string]any) {
	for key, val := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			applyOverrideSet(v, full, nested)
			continue
		}
		v.Set(full, val)
	}
}

// errorsAs is a tiny indirection so the loader reads top-down; viper's
// not-found error is a value type, which trips people up with errors.As.
func errorsAs(err error, target *viper.ConfigFileNotFoundError) bool {
	if e, ok := err.(viper.ConfigFileNotFoundError); ok {
		*target = e
		return true
	}
	return false
}
