// =============================================================================
// 📦 Captain 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("captain.yaml").
//	    WithEnvPrefix("CAPTAIN").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/captain/types"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Captain 的完整配置结构
type Config struct {
	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// LLM 大语言模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Embedding 向量化配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Trajectory 轨迹与后台任务配置
	Trajectory TrajectoryConfig `yaml:"trajectory" env:"TRAJECTORY"`

	// Assembler 上下文组装配置
	Assembler AssemblerConfig `yaml:"assembler" env:"ASSEMBLER"`

	// Capture 截屏配置
	Capture CaptureConfig `yaml:"capture" env:"CAPTURE"`

	// Chat shell 对话模式配置
	Chat ChatConfig `yaml:"chat" env:"CHAT"`

	// Cache Redis 缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// ProviderConfig 单个模型服务配置
type ProviderConfig struct {
	// Provider 名称: openai, anthropic, google, fireworks, custom
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选，custom 必填）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// Main 生成自动补全的主模型
	Main ProviderConfig `yaml:"main" env:"MAIN"`
	// Vision 负责截图描述与冗余判断的视觉模型
	Vision ProviderConfig `yaml:"vision" env:"VISION"`
	// 最大重试次数（仅可重试错误）
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 主模型温度
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 主模型最大输出 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Model      string        `yaml:"model" env:"MODEL"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 是否用 Redis 缓存向量
	CacheEnabled bool          `yaml:"cache_enabled" env:"CACHE_ENABLED"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// TrajectoryConfig 轨迹配置
type TrajectoryConfig struct {
	// 是否启用冗余截图检测
	DiscardRedundant bool `yaml:"discard_redundant" env:"DISCARD_REDUNDANT"`
	// 触发模型判定所需的最少相同像素数
	SimilarityThresholdPixels int `yaml:"similarity_threshold_pixels" env:"SIMILARITY_THRESHOLD_PIXELS"`
	// 单个后台任务超时
	TaskTimeout time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
	// 后台 worker 数
	Workers int `yaml:"workers" env:"WORKERS"`
	// 后台队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// 视觉模型请求速率限制
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `yaml:"burst" env:"BURST"`
}

// AssemblerConfig 上下文组装配置
type AssemblerConfig struct {
	RecencyBudget      int    `yaml:"recency_budget" env:"RECENCY_BUDGET"`
	RetrievalBudget    int    `yaml:"retrieval_budget" env:"RETRIEVAL_BUDGET"`
	ImageTokens        int    `yaml:"image_tokens" env:"IMAGE_TOKENS"`
	ReservedTextTokens int    `yaml:"reserved_text_tokens" env:"RESERVED_TEXT_TOKENS"`
	MaxContextTokens   int    `yaml:"max_context_tokens" env:"MAX_CONTEXT_TOKENS"`
	TokenizerModel     string `yaml:"tokenizer_model" env:"TOKENIZER_MODEL"`
}

// CaptureConfig 截屏配置
type CaptureConfig struct {
	// 帧目录（外部截屏程序写入 PNG/JPEG）
	Directory string `yaml:"directory" env:"DIRECTORY"`
	// 采集间隔
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	// 是否监听目录变化而不是轮询
	Watch bool `yaml:"watch" env:"WATCH"`
}

// ChatConfig shell 对话模式配置
type ChatConfig struct {
	// 对话温度（主模型）
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 开场白，作为第一条助手消息写入轨迹
	Greeting string `yaml:"greeting" env:"GREETING"`
	// 是否用用户消息作为语义召回的 query
	RetrieveWithMessage bool `yaml:"retrieve_with_message" env:"RETRIEVE_WITH_MESSAGE"`
}

// CacheConfig Redis 配置
type CacheConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 是否启用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Addr      string `yaml:"addr" env:"ADDR"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 是否使用明文 gRPC
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CAPTAIN",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 验证
// =============================================================================

// Validate 验证配置，错误码为 INVALID_CONFIG
func (c *Config) Validate() error {
	var errs []string

	a := c.Assembler
	if a.RecencyBudget < 0 {
		errs = append(errs, "assembler.recency_budget must not be negative")
	}
	if a.RetrievalBudget < 0 {
		errs = append(errs, "assembler.retrieval_budget must not be negative")
	}
	if a.ImageTokens <= 0 {
		errs = append(errs, "assembler.image_tokens must be positive")
	}
	if a.MaxContextTokens > 0 &&
		(a.RecencyBudget+a.RetrievalBudget)*a.ImageTokens+a.ReservedTextTokens > a.MaxContextTokens {
		errs = append(errs, "assembler image budgets plus reserved text exceed max_context_tokens")
	}

	tr := c.Trajectory
	if tr.SimilarityThresholdPixels < 0 {
		errs = append(errs, "trajectory.similarity_threshold_pixels must not be negative")
	}
	if tr.Workers <= 0 {
		errs = append(errs, "trajectory.workers must be positive")
	}
	if tr.RequestsPerSecond < 0 {
		errs = append(errs, "trajectory.requests_per_second must not be negative")
	}

	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errs = append(errs, "chat.temperature must be between 0 and 2")
	}
	if c.Capture.Interval <= 0 {
		errs = append(errs, "capture.interval must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("config validation errors: %s", strings.Join(errs, "; ")))
	}

	return nil
}
