// =============================================================================
// 📦 Captain 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Log:        DefaultLogConfig(),
		LLM:        DefaultLLMConfig(),
		Embedding:  DefaultEmbeddingConfig(),
		Trajectory: DefaultTrajectoryConfig(),
		Assembler:  DefaultAssemblerConfig(),
		Capture:    DefaultCaptureConfig(),
		Chat:       DefaultChatConfig(),
		Cache:      DefaultCacheConfig(),
		Metrics:    DefaultMetricsConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "console",
		OutputPaths:  []string{"stderr"},
		EnableCaller: true,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Main: ProviderConfig{
			Provider: "anthropic",
			Model:    "claude-3-5-sonnet-20241022",
			Timeout:  2 * time.Minute,
		},
		Vision: ProviderConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  time.Minute,
		},
		MaxRetries:  2,
		Temperature: 0,
		MaxTokens:   4096,
	}
}

// DefaultEmbeddingConfig 返回默认向量化配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL:    "https://api.openai.com",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
		CacheTTL:   24 * time.Hour,
	}
}

// DefaultTrajectoryConfig 返回默认轨迹配置
func DefaultTrajectoryConfig() TrajectoryConfig {
	return TrajectoryConfig{
		DiscardRedundant:          true,
		SimilarityThresholdPixels: 1_000_000,
		TaskTimeout:               2 * time.Minute,
		Workers:                   4,
		QueueSize:                 64,
		RequestsPerSecond:         2,
		Burst:                     4,
	}
}

// DefaultAssemblerConfig 返回默认上下文组装配置
// 80 张图 × 1600 + 5000 文本 = 133000
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		RecencyBudget:      40,
		RetrievalBudget:    40,
		ImageTokens:        1600,
		ReservedTextTokens: 5000,
		MaxContextTokens:   133_000,
		TokenizerModel:     "gpt-4o",
	}
}

// DefaultCaptureConfig 返回默认截屏配置
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Directory: "./frames",
		Interval:  5 * time.Second,
	}
}

// DefaultChatConfig 返回默认对话配置
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		Temperature:         0.7,
		Greeting:            "How can I help you?",
		RetrieveWithMessage: true,
	}
}

// DefaultCacheConfig 返回默认 Redis 配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "captain:",
		PoolSize:  10,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "captain",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "captain",
		SampleRate:   0.1,
	}
}
