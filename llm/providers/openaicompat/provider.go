package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/captain/internal/tlsutil"
	"github.com/BaSui01/captain/llm"
	"github.com/BaSui01/captain/llm/providers"
	"go.uber.org/zap"
)

const (
	defaultTimeout      = 60 * time.Second // 带图请求较慢
	defaultEndpointPath = "/v1/chat/completions"
)

// Config OpenAI 兼容端点的连接参数
type Config struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	// DefaultModel 请求未指定模型时使用，为空再退到 FallbackModel
	DefaultModel  string
	FallbackModel string
	Timeout       time.Duration
	EndpointPath  string
}

// Provider 走 /chat/completions 协议的 llm.Provider，OpenAI、Gemini、Fireworks 与自建网关共用
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New Timeout 为 0 时取 60s，EndpointPath 为空时取 /v1/chat/completions
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = defaultEndpointPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.SecureHTTPClient(cfg.Timeout),
		Logger: logger.With(zap.String("component", "provider"), zap.String("provider", cfg.ProviderName)),
	}
}

func (p *Provider) Name() string { return p.Cfg.ProviderName }

// Completion 发送一次非流式补全；图片以 data URL 内联
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if strings.TrimSpace(p.Cfg.APIKey) == "" {
		return nil, providers.MissingCredentials(p.Name())
	}

	body := p.encode(req)
	httpReq, err := p.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		msg := providers.ReadErrorMessage(resp.Body)
		p.Logger.Debug("completion rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("model", body.Model),
			zap.Duration("latency", time.Since(start)))
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return p.decode(resp)
}

func (p *Provider) encode(req *llm.ChatRequest) providers.OpenAICompatRequest {
	return providers.OpenAICompatRequest{
		Model:       providers.ChooseModel(req, p.Cfg.DefaultModel, p.Cfg.FallbackModel),
		Messages:    providers.ConvertMessagesToOpenAI(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
}

func (p *Provider) newRequest(ctx context.Context, body providers.OpenAICompatRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	url := strings.TrimRight(p.Cfg.BaseURL, "/") + p.Cfg.EndpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	providers.BearerTokenHeaders(httpReq, p.Cfg.APIKey)
	return httpReq, nil
}

// decode 响应体无法解析时按传输错误处理（可重试）
func (p *Provider) decode(resp *http.Response) (*llm.ChatResponse, error) {
	var oa providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oa); err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	out := providers.ToLLMChatResponse(oa, p.Name())
	if oa.Created != 0 {
		out.CreatedAt = time.Unix(oa.Created, 0)
	}
	return out, nil
}
