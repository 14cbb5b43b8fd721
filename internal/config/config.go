package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for agentgate.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Server    ServerConfig    `json:"server"`
	Channels  ChannelsConfig  `json:"channels"`
	Router    RouterConfig    `json:"router"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Brain     BrainConfig     `json:"brain"`
	Upstream  UpstreamConfig  `json:"upstream"`
	Cache     CacheConfig     `json:"cache"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Ledger    LedgerConfig    `json:"ledger"`
	Socket    SocketConfig    `json:"socket"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel" split_words:"true"`
	LogFormat string `json:"logFormat" split_words:"true"` // "text" | "json"
	LogFile   string `json:"logFile,omitempty" split_words:"true"`
}

type ServerConfig struct {
	Host                   string `json:"host" split_words:"true"`
	Port                   int    `json:"port" split_words:"true"`
	ShutdownTimeoutSeconds int    `json:"shutdownTimeoutSeconds" split_words:"true"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled     bool   `json:"enabled" split_words:"true"`
	SecretToken string `json:"secretToken,omitempty" split_words:"true"`
}

type WhatsAppConfig struct {
	Enabled     bool   `json:"enabled" split_words:"true"`
	AppSecret   string `json:"appSecret,omitempty" split_words:"true"`
	VerifyToken string `json:"verifyToken,omitempty" split_words:"true"`
}

type DiscordConfig struct {
	Enabled    bool `json:"enabled" split_words:"true"`
	IgnoreBots bool `json:"ignoreBots" split_words:"true"`
}

// RouterConfig configures the webhook router. A zero rate disables limiting.
type RouterConfig struct {
	RateLimitPerMinute float64 `json:"rateLimitPerMinute" split_words:"true"`
	RateBurst          int     `json:"rateBurst" split_words:"true"`
}

type DispatchConfig struct {
	Backend string             `json:"backend" split_words:"true"` // "http" | "kafka" | "amqp" | "local"
	HTTP    HTTPDispatchConfig `json:"http"`
	Kafka   KafkaConfig        `json:"kafka"`
	AMQP    AMQPConfig         `json:"amqp"`
}

type HTTPDispatchConfig struct {
	BaseURL        string `json:"baseUrl" split_words:"true"`
	TimeoutSeconds int    `json:"timeoutSeconds" split_words:"true"`
	MaxRetries     int    `json:"maxRetries" split_words:"true"`
}

type KafkaConfig struct {
	Brokers       string `json:"brokers" split_words:"true"` // comma separated
	Topic         string `json:"topic" split_words:"true"`
	ConsumerGroup string `json:"consumerGroup" split_words:"true"` // used by the worker command
}

type AMQPConfig struct {
	URL   string `json:"url" split_words:"true"`
	Queue string `json:"queue" split_words:"true"`
}

// BrainConfig configures the response pipeline.
type BrainConfig struct {
	MemoryBackend           string   `json:"memoryBackend" split_words:"true"`  // "http" | "knowledge" | "none"
	CacheBackend            string   `json:"cacheBackend" split_words:"true"`   // "http" | "redis" | "none"
	AugmentBackend          string   `json:"augmentBackend" split_words:"true"` // "evm" | "http" | "static" | "none"
	MemoryTimeoutSeconds    int      `json:"memoryTimeoutSeconds" split_words:"true"`
	CacheTimeoutSeconds     int      `json:"cacheTimeoutSeconds" split_words:"true"`
	InferenceTimeoutSeconds int      `json:"inferenceTimeoutSeconds" split_words:"true"`
	Keywords                []string `json:"keywords,omitempty" split_words:"true"`
	PropagateCancel         bool     `json:"propagateCancel" split_words:"true"`
}

// UpstreamConfig points at the inference worker.
type UpstreamConfig struct {
	BaseURL      string   `json:"baseUrl" split_words:"true"`
	APIKey       string   `json:"apiKey,omitempty" split_words:"true"`
	Model        string   `json:"model" split_words:"true"`
	FallbackURLs []string `json:"fallbackUrls,omitempty" split_words:"true"`
}

type CacheConfig struct {
	RedisAddr     string `json:"redisAddr" split_words:"true"`
	RedisPassword string `json:"redisPassword,omitempty" split_words:"true"`
	RedisDB       int    `json:"redisDb" split_words:"true"`
	Prefix        string `json:"prefix" split_words:"true"`
	TTLSeconds    int    `json:"ttlSeconds" split_words:"true"`
}

// KnowledgeConfig configures the local SQLite knowledge base.
type KnowledgeConfig struct {
	DBPath       string `json:"dbPath" split_words:"true"`
	ChunkSize    int    `json:"chunkSize" split_words:"true"`
	ChunkOverlap int    `json:"chunkOverlap" split_words:"true"`
}

// LedgerConfig configures the domain augmentation source.
type LedgerConfig struct {
	RPCURL         string `json:"rpcUrl" split_words:"true"`
	WatchAddress   string `json:"watchAddress,omitempty" split_words:"true"`
	HTTPURL        string `json:"httpUrl,omitempty" split_words:"true"`
	StaticData     string `json:"staticData,omitempty" split_words:"true"`
	TimeoutSeconds int    `json:"timeoutSeconds" split_words:"true"`
}

type SocketConfig struct {
	Enabled        bool     `json:"enabled" split_words:"true"`
	Path           string   `json:"path" split_words:"true"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty" split_words:"true"`
	MaxInflight    int      `json:"maxInflight" split_words:"true"` // events one client may have in progress
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" split_words:"true"`
	Path    string `json:"path" split_words:"true"`
}

// DefaultConfigDir returns the default config directory (~/.agentgate).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentgate"
	}
	return filepath.Join(home, ".agentgate")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML config file, expands ${VAR} references,
// applies AGENTGATE_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	if isYAML(path) {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	return finalize(cfg)
}

// FromEnv builds a config from defaults and AGENTGATE_* variables only,
// for deployments that ship no config file.
func FromEnv() (*Config, error) {
	return finalize(Defaults())
}

func finalize(cfg *Config) (*Config, error) {
	if err := ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config env overrides: %w", err)
	}

	cfg.General.LogFile = expandPath(cfg.General.LogFile)
	cfg.Knowledge.DBPath = expandPath(cfg.Knowledge.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides config groups from AGENTGATE_<GROUP>_<FIELD> variables.
func ApplyEnv(cfg *Config) error {
	groups := []struct {
		prefix string
		target any
	}{
		{"AGENTGATE_GENERAL", &cfg.General},
		{"AGENTGATE_SERVER", &cfg.Server},
		{"AGENTGATE_CHANNELS_TELEGRAM", &cfg.Channels.Telegram},
		{"AGENTGATE_CHANNELS_WHATSAPP", &cfg.Channels.WhatsApp},
		{"AGENTGATE_CHANNELS_DISCORD", &cfg.Channels.Discord},
		{"AGENTGATE_ROUTER", &cfg.Router},
		{"AGENTGATE_DISPATCH", &cfg.Dispatch},
		{"AGENTGATE_DISPATCH_HTTP", &cfg.Dispatch.HTTP},
		{"AGENTGATE_DISPATCH_KAFKA", &cfg.Dispatch.Kafka},
		{"AGENTGATE_DISPATCH_AMQP", &cfg.Dispatch.AMQP},
		{"AGENTGATE_BRAIN", &cfg.Brain},
		{"AGENTGATE_UPSTREAM", &cfg.Upstream},
		{"AGENTGATE_CACHE", &cfg.Cache},
		{"AGENTGATE_KNOWLEDGE", &cfg.Knowledge},
		{"AGENTGATE_LEDGER", &cfg.Ledger},
		{"AGENTGATE_SOCKET", &cfg.Socket},
		{"AGENTGATE_METRICS", &cfg.Metrics},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.target); err != nil {
			return fmt.Errorf("%s: %w", g.prefix, err)
		}
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as indented JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if isYAML(path) {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		if data, err = yaml.Marshal(m); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values and reports all problems at once.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, "general.logFormat must be text or json")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.SecretToken == "" {
		errs = append(errs, "channels.telegram.secretToken is required when telegram is enabled")
	}
	if cfg.Channels.WhatsApp.Enabled && cfg.Channels.WhatsApp.AppSecret == "" {
		errs = append(errs, "channels.whatsapp.appSecret is required when whatsapp is enabled")
	}

	if cfg.Router.RateLimitPerMinute < 0 {
		errs = append(errs, "router.rateLimitPerMinute must be >= 0")
	}

	switch cfg.Dispatch.Backend {
	case "http":
		if err := checkURL(cfg.Dispatch.HTTP.BaseURL); err != nil {
			errs = append(errs, "dispatch.http.baseUrl: "+err.Error())
		}
	case "kafka":
		if cfg.Dispatch.Kafka.Brokers == "" || cfg.Dispatch.Kafka.Topic == "" {
			errs = append(errs, "dispatch.kafka requires brokers and topic")
		}
	case "amqp":
		if cfg.Dispatch.AMQP.URL == "" {
			errs = append(errs, "dispatch.amqp.url is required")
		}
	case "local":
	default:
		errs = append(errs, "dispatch.backend must be one of: http, kafka, amqp, local")
	}

	switch cfg.Brain.MemoryBackend {
	case "http", "knowledge", "none":
	default:
		errs = append(errs, "brain.memoryBackend must be one of: http, knowledge, none")
	}
	switch cfg.Brain.CacheBackend {
	case "http", "none":
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redisAddr is required for the redis cache backend")
		}
	default:
		errs = append(errs, "brain.cacheBackend must be one of: http, redis, none")
	}
	switch cfg.Brain.AugmentBackend {
	case "static", "none":
	case "evm":
		if cfg.Ledger.RPCURL == "" {
			errs = append(errs, "ledger.rpcUrl is required for the evm augment backend")
		}
	case "http":
		if err := checkURL(cfg.Ledger.HTTPURL); err != nil {
			errs = append(errs, "ledger.httpUrl: "+err.Error())
		}
	default:
		errs = append(errs, "brain.augmentBackend must be one of: evm, http, static, none")
	}
	if cfg.Brain.MemoryTimeoutSeconds < 1 || cfg.Brain.CacheTimeoutSeconds < 1 || cfg.Brain.InferenceTimeoutSeconds < 1 {
		errs = append(errs, "brain stage timeouts must be >= 1 second")
	}

	if err := checkURL(cfg.Upstream.BaseURL); err != nil {
		errs = append(errs, "upstream.baseUrl: "+err.Error())
	}

	if cfg.Knowledge.ChunkSize < 1 {
		errs = append(errs, "knowledge.chunkSize must be >= 1")
	}
	if cfg.Knowledge.ChunkOverlap < 0 || cfg.Knowledge.ChunkOverlap >= cfg.Knowledge.ChunkSize {
		errs = append(errs, "knowledge.chunkOverlap must be >= 0 and smaller than chunkSize")
	}

	if cfg.Socket.Enabled && !strings.HasPrefix(cfg.Socket.Path, "/") {
		errs = append(errs, "socket.path must start with /")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func checkURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// yamlToJSON re-encodes a YAML document as JSON so one set of struct tags serves both formats.
func yamlToJSON(data []byte) ([]byte, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
