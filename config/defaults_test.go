package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, EmbeddingConfig{}, cfg.Embedding)
	assert.NotEqual(t, TrajectoryConfig{}, cfg.Trajectory)
	assert.NotEqual(t, AssemblerConfig{}, cfg.Assembler)
	assert.NotEqual(t, CaptureConfig{}, cfg.Capture)
	assert.NotEqual(t, CacheConfig{}, cfg.Cache)
	assert.NotEqual(t, MetricsConfig{}, cfg.Metrics)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
}

// --- Individual Default*Config functions ---

func TestDefaultAssemblerConfig(t *testing.T) {
	cfg := DefaultAssemblerConfig()
	assert.Equal(t, 40, cfg.RecencyBudget)
	assert.Equal(t, 40, cfg.RetrievalBudget)
	assert.Equal(t, 1600, cfg.ImageTokens)
	assert.Equal(t, 5000, cfg.ReservedTextTokens)
	// 两个预算全部用满时恰好不超过上限
	assert.Equal(t, cfg.MaxContextTokens,
		(cfg.RecencyBudget+cfg.RetrievalBudget)*cfg.ImageTokens+cfg.ReservedTextTokens)
}

func TestDefaultTrajectoryConfig(t *testing.T) {
	cfg := DefaultTrajectoryConfig()
	assert.True(t, cfg.DiscardRedundant)
	assert.Equal(t, 1_000_000, cfg.SimilarityThresholdPixels)
	assert.Equal(t, 2*time.Minute, cfg.TaskTimeout)
	assert.Positive(t, cfg.Workers)
}

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	assert.Equal(t, "anthropic", cfg.Main.Provider)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.Main.Model)
	assert.Equal(t, "openai", cfg.Vision.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Vision.Model)
}

func TestDefaultCaptureConfig(t *testing.T) {
	cfg := DefaultCaptureConfig()
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.False(t, cfg.Watch)
}

func TestDefaultChatConfig(t *testing.T) {
	cfg := DefaultChatConfig()
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-9)
	assert.Equal(t, "How can I help you?", cfg.Greeting)
	assert.True(t, cfg.RetrieveWithMessage)
}

func TestDefaultEmbeddingConfig(t *testing.T) {
	cfg := DefaultEmbeddingConfig()
	assert.Equal(t, "text-embedding-3-small", cfg.Model)
	assert.Equal(t, 1536, cfg.Dimensions)
	assert.False(t, cfg.CacheEnabled)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "captain", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}
