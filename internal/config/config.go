package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EngineConfig struct {
	Mode           string  `yaml:"mode"` // mock, exec
	Command        string  `yaml:"command"`
	Model          string  `yaml:"model"`
	Language       string  `yaml:"language"`
	SampleRate     int     `yaml:"sample_rate"`
	Channels       int     `yaml:"channels"`
	PartialEveryMS int     `yaml:"partial_every_ms"`
	PublishInterim bool    `yaml:"publish_interim"`
	NominalConf    float64 `yaml:"nominal_confidence"`
}

type DeviceConfig struct {
	Enabled          bool `yaml:"enabled"`
	ScanTimeoutMS    int  `yaml:"scan_timeout_ms"`
	ConnectTimeoutMS int  `yaml:"connect_timeout_ms"`
}

type ModelsConfig struct {
	Dir               string `yaml:"dir"`
	DownloadTimeoutMS int    `yaml:"download_timeout_ms"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type SettingsConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Engine      EngineConfig    `yaml:"engine"`
	Device      DeviceConfig    `yaml:"device"`
	Models      ModelsConfig    `yaml:"models"`
	History     HistoryConfig   `yaml:"history"`
	Settings    SettingsConfig  `yaml:"settings"`
}

func Default() Config {
	return Config{
		RuntimeName: "atcscribe-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Engine: EngineConfig{
			Mode:           "mock",
			Model:          "",
			Language:       "en",
			SampleRate:     16000,
			Channels:       1,
			PartialEveryMS: 800,
			PublishInterim: true,
			NominalConf:    1.0,
		},
		Device: DeviceConfig{
			Enabled:          true,
			ScanTimeoutMS:    10000,
			ConnectTimeoutMS: 8000,
		},
		Models: ModelsConfig{
			Dir:               "./data/models",
			DownloadTimeoutMS: 600000,
		},
		History: HistoryConfig{
			Path: "./data/transcriptions.db",
		},
		Settings: SettingsConfig{
			Dir: "./data/settings",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "ATC_RUNTIME_NAME")
	overrideString(&cfg.Environment, "ATC_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "ATC_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "ATC_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "ATC_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "ATC_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "ATC_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "ATC_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "ATC_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "ATC_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "ATC_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "ATC_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "ATC_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "ATC_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "ATC_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "ATC_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "ATC_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Engine.Mode, "ATC_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "ATC_ENGINE_COMMAND")
	overrideString(&cfg.Engine.Model, "ATC_ENGINE_MODEL")
	overrideString(&cfg.Engine.Language, "ATC_ENGINE_LANGUAGE")
	overrideInt(&cfg.Engine.SampleRate, "ATC_ENGINE_SAMPLE_RATE")
	overrideInt(&cfg.Engine.Channels, "ATC_ENGINE_CHANNELS")
	overrideInt(&cfg.Engine.PartialEveryMS, "ATC_ENGINE_PARTIAL_EVERY_MS")
	overrideBool(&cfg.Engine.PublishInterim, "ATC_ENGINE_PUBLISH_INTERIM")
	overrideBool(&cfg.Device.Enabled, "ATC_DEVICE_ENABLED")
	overrideInt(&cfg.Device.ScanTimeoutMS, "ATC_DEVICE_SCAN_TIMEOUT_MS")
	overrideInt(&cfg.Device.ConnectTimeoutMS, "ATC_DEVICE_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Models.Dir, "ATC_MODELS_DIR")
	overrideInt(&cfg.Models.DownloadTimeoutMS, "ATC_MODELS_DOWNLOAD_TIMEOUT_MS")
	overrideString(&cfg.History.Path, "ATC_HISTORY_PATH")
	overrideBool(&cfg.History.VacuumOnStart, "ATC_HISTORY_VACUUM_ON_START")
	overrideString(&cfg.Settings.Dir, "ATC_SETTINGS_DIR")
	overrideBool(&cfg.Settings.InMemory, "ATC_SETTINGS_IN_MEMORY")
}

func validate(cfg Config) error {
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", cfg.HTTP.Port)
	}
	if len(cfg.Bus.Servers) == 0 && !cfg.Bus.Embedded {
		return errors.New("bus requires servers or embedded mode")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return fmt.Errorf("unknown engine mode: %q", cfg.Engine.Mode)
	}
	if cfg.Engine.Mode == "exec" && strings.TrimSpace(cfg.Engine.Command) == "" {
		return errors.New("engine mode exec requires a command")
	}
	if cfg.Engine.SampleRate <= 0 || cfg.Engine.Channels <= 0 {
		return fmt.Errorf("invalid audio format: %d Hz, %d channels", cfg.Engine.SampleRate, cfg.Engine.Channels)
	}
	if cfg.Engine.NominalConf < 0 || cfg.Engine.NominalConf > 1 {
		return fmt.Errorf("nominal confidence out of range: %f", cfg.Engine.NominalConf)
	}
	if cfg.History.Path == "" {
		return errors.New("history path is required")
	}
	return nil
}

func overrideString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		*target = val
	}
}

func overrideStringSlice(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		*target = out
	}
}

func overrideInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			*target = parsed
		}
	}
}
