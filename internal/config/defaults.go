package config

// DefaultKeywords trigger the domain augmentation stage.
var DefaultKeywords = []string{"solana", "wallet", "transaction", "balance", "nft", "token", "staking", "stake"}

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   8787,
			ShutdownTimeoutSeconds: 5,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{Enabled: false},
			WhatsApp: WhatsAppConfig{Enabled: false},
			Discord:  DiscordConfig{Enabled: false, IgnoreBots: true},
		},
		Router: RouterConfig{
			RateLimitPerMinute: 0,
			RateBurst:          10,
		},
		Dispatch: DispatchConfig{
			Backend: "local",
			HTTP: HTTPDispatchConfig{
				BaseURL:        "http://localhost:8788",
				TimeoutSeconds: 15,
				MaxRetries:     2,
			},
			Kafka: KafkaConfig{Topic: "agent.messages", ConsumerGroup: "agentgate-worker"},
			AMQP:  AMQPConfig{Queue: "agent.messages"},
		},
		Brain: BrainConfig{
			MemoryBackend:           "http",
			CacheBackend:            "http",
			AugmentBackend:          "none",
			MemoryTimeoutSeconds:    5,
			CacheTimeoutSeconds:     5,
			InferenceTimeoutSeconds: 10,
			Keywords:                append([]string(nil), DefaultKeywords...),
		},
		Upstream: UpstreamConfig{
			BaseURL: "http://localhost:8789",
			Model:   "@cf/meta/llama-3-8b-instruct",
		},
		Cache: CacheConfig{
			RedisAddr:  "localhost:6379",
			Prefix:     "agentgate:ai:",
			TTLSeconds: 3600,
		},
		Knowledge: KnowledgeConfig{
			DBPath:       "~/.agentgate/knowledge.db",
			ChunkSize:    256,
			ChunkOverlap: 32,
		},
		Ledger: LedgerConfig{
			TimeoutSeconds: 8,
		},
		Socket: SocketConfig{
			Enabled:     true,
			Path:        "/socket",
			MaxInflight: 4,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
