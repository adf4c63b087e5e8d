package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/captain/agent/autocomplete"
	"github.com/BaSui01/captain/agent/chat"
	agentcontext "github.com/BaSui01/captain/agent/context"
	"github.com/BaSui01/captain/agent/enrichment"
	"github.com/BaSui01/captain/agent/redundancy"
	"github.com/BaSui01/captain/agent/screen"
	"github.com/BaSui01/captain/agent/trajectory"
	"github.com/BaSui01/captain/config"
	"github.com/BaSui01/captain/internal/cache"
	"github.com/BaSui01/captain/internal/metrics"
	"github.com/BaSui01/captain/internal/server"
	"github.com/BaSui01/captain/llm"
	"github.com/BaSui01/captain/llm/embedding"
	llmfactory "github.com/BaSui01/captain/llm/factory"
	"github.com/BaSui01/captain/llm/providers"
)

// appOptions 命令行层面的运行参数
type appOptions struct {
	Query string
	Out   io.Writer
}

// app 持有一次会话的全部组件
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	registry   *prometheus.Registry
	collector  *metrics.Collector
	cache      *cache.Manager
	trajectory *trajectory.Trajectory
	capturer   *screen.DirectoryCapturer
	session    *autocomplete.Session
	chat       *chat.Session
}

// =============================================================================
// 🏗️ 组件装配
// =============================================================================

func newApp(cfg *config.Config, logger *zap.Logger, opts appOptions) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollector(cfg.Metrics.Namespace, a.registry, logger)

	mainProvider, err := a.newProvider(cfg.LLM.Main)
	if err != nil {
		return nil, fmt.Errorf("main provider: %w", err)
	}
	visionProvider, err := a.newProvider(cfg.LLM.Vision)
	if err != nil {
		return nil, fmt.Errorf("vision provider: %w", err)
	}

	embedder := a.newEmbedder()

	detector := redundancy.New(redundancy.Config{
		Model:                     cfg.LLM.Vision.Model,
		SimilarityThresholdPixels: cfg.Trajectory.SimilarityThresholdPixels,
		MaxTokens:                 redundancy.DefaultConfig().MaxTokens,
	}, visionProvider, logger)

	enricher := enrichment.New(enrichment.Config{
		Model:             cfg.LLM.Vision.Model,
		MaxTokens:         enrichment.DefaultConfig().MaxTokens,
		RequestsPerSecond: cfg.Trajectory.RequestsPerSecond,
		Burst:             cfg.Trajectory.Burst,
	}, visionProvider, embedder, logger, enrichment.WithMetrics(a.collector))

	ac := cfg.Assembler
	assembler := agentcontext.NewAssembler(agentcontext.AssemblerConfig{
		RecencyBudget:      ac.RecencyBudget,
		RetrievalBudget:    ac.RetrievalBudget,
		ImageTokens:        ac.ImageTokens,
		ReservedTextTokens: ac.ReservedTextTokens,
		MaxContextTokens:   ac.MaxContextTokens,
		TokenizerModel:     ac.TokenizerModel,
	}, embedder, logger, agentcontext.WithMetrics(a.collector))

	a.trajectory = trajectory.New(trajectory.Config{
		DiscardRedundant: cfg.Trajectory.DiscardRedundant,
		TaskTimeout:      cfg.Trajectory.TaskTimeout,
		Workers:          cfg.Trajectory.Workers,
		QueueSize:        cfg.Trajectory.QueueSize,
	}, trajectory.Dependencies{
		Detector:  detector,
		Enricher:  enricher,
		Assembler: assembler,
		Metrics:   a.collector,
	}, logger)

	a.capturer, err = screen.NewDirectoryCapturer(cfg.Capture.Directory, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	a.session = autocomplete.NewSession(autocomplete.Config{
		Model:          cfg.LLM.Main.Model,
		Temperature:    float32(cfg.LLM.Temperature),
		MaxTokens:      cfg.LLM.MaxTokens,
		Interval:       cfg.Capture.Interval,
		RetrievalQuery: opts.Query,
	}, a.trajectory, a.capturer, mainProvider, autocomplete.NewWriterTyper(out), logger)

	a.chat = chat.NewSession(chat.Config{
		Model:               cfg.LLM.Main.Model,
		Temperature:         float32(cfg.Chat.Temperature),
		MaxTokens:           cfg.LLM.MaxTokens,
		Interval:            cfg.Capture.Interval,
		Greeting:            cfg.Chat.Greeting,
		RetrieveWithMessage: cfg.Chat.RetrieveWithMessage,
	}, a.trajectory, a.capturer, mainProvider, out, logger)

	return a, nil
}

// newProvider 构造 provider 并套上重试与中间件链
func (a *app) newProvider(pc config.ProviderConfig) (llm.Provider, error) {
	base, err := llmfactory.NewProviderFromConfig(pc.Provider, llmfactory.ProviderConfig{
		APIKey:  pc.APIKey,
		BaseURL: pc.BaseURL,
		Model:   pc.Model,
		Timeout: pc.Timeout,
	}, a.logger)
	if err != nil {
		return nil, err
	}

	retryCfg := providers.DefaultRetryConfig()
	retryCfg.MaxRetries = a.cfg.LLM.MaxRetries
	retrying := providers.NewRetryableProvider(base, retryCfg, a.logger)

	chain := llm.NewChain(
		llm.RecoveryMiddleware(func(r any) {
			a.logger.Error("llm provider panicked", zap.String("provider", base.Name()), zap.Any("recover", r))
		}),
		llm.TracingMiddleware(base.Name()),
		llm.MetricsMiddleware(base.Name(), a.collector),
		llm.LoggingMiddleware(a.logger),
	)
	return llm.Wrap(retrying, chain), nil
}

// newEmbedder 未配置 API Key 时返回 nil，此时不做向量化与语义召回
func (a *app) newEmbedder() embedding.Provider {
	ec := a.cfg.Embedding
	if ec.APIKey == "" {
		a.logger.Warn("embedding api key not configured, retrieval disabled")
		return nil
	}

	var provider embedding.Provider = embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:     ec.APIKey,
		BaseURL:    ec.BaseURL,
		Model:      ec.Model,
		Dimensions: ec.Dimensions,
		Timeout:    ec.Timeout,
	})
	if !ec.CacheEnabled {
		return provider
	}

	cc := a.cfg.Cache
	manager, err := cache.NewManager(cache.Config{
		Addr:       cc.Addr,
		Password:   cc.Password,
		DB:         cc.DB,
		KeyPrefix:  cc.KeyPrefix,
		DefaultTTL: ec.CacheTTL,
		PoolSize:   cc.PoolSize,
		TLS:        cc.TLS,
	}, a.logger)
	if err != nil {
		a.logger.Warn("embedding cache unavailable, continuing without it", zap.Error(err))
		return provider
	}
	a.cache = manager
	return embedding.NewCachedProvider(provider, manager, ec.Model, ec.CacheTTL, a.collector, a.logger)
}

// =============================================================================
// 🚀 运行
// =============================================================================

// Run 启动截图循环、指标服务与触发循环，直到 ctx 结束或用户输入 q
func (a *app) Run(ctx context.Context, in io.Reader) error {
	a.session.Start()
	return a.run(ctx, a.session.CaptureLoop, func(ctx context.Context) error {
		return a.triggerLoop(ctx, in)
	})
}

// RunShell 启动对话模式：开场白之后每行输入是一条用户消息，"exit" 退出
func (a *app) RunShell(ctx context.Context, in io.Reader) error {
	a.chat.Start()
	return a.run(ctx, a.chat.CaptureLoop, func(ctx context.Context) error {
		return a.shellLoop(ctx, in)
	})
}

// run 与前台循环并行跑截图与指标服务，前台循环返回即结束整个会话
func (a *app) run(ctx context.Context, captureLoop, foreground func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Capture.Watch {
		g.Go(func() error { return a.watchLoop(gctx) })
	} else {
		g.Go(func() error { return captureLoop(gctx) })
	}

	if a.cfg.Metrics.Enabled {
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = a.cfg.Metrics.Addr
		srv := server.NewManager(server.MetricsHandler(a.registry), srvCfg, a.logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	g.Go(func() error {
		defer cancel()
		return foreground(gctx)
	})

	err := g.Wait()
	a.logger.Info("session finished", zap.Any("stats", a.trajectory.Stats()))
	return err
}

// watchLoop 把目录监听到的新帧追加到轨迹
func (a *app) watchLoop(ctx context.Context) error {
	w, err := screen.NewWatcher(a.capturer.Dir(), screen.WithWatcherLogger(a.logger))
	if err != nil {
		return err
	}
	frames, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	for shot := range frames {
		a.trajectory.AppendScreenshot(ctx, shot)
	}
	return nil
}

// readLines 逐行读取输入并去掉首尾空白，ctx 结束或读到 EOF 时关闭通道
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// triggerLoop 每读到一行触发一次补全，"q" 退出
func (a *app) triggerLoop(ctx context.Context, in io.Reader) error {
	lines := readLines(ctx, in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || line == "q" {
				return nil
			}
			if _, err := a.session.Trigger(ctx); err != nil {
				a.logger.Warn("autocomplete failed", zap.Error(err))
			}
		}
	}
}

// shellLoop 把每行非空输入作为用户消息发给对话会话，"exit" 退出
func (a *app) shellLoop(ctx context.Context, in io.Reader) error {
	lines := readLines(ctx, in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || line == "exit" {
				return nil
			}
			if line == "" {
				continue
			}
			if _, err := a.chat.Send(ctx, line); err != nil {
				a.logger.Warn("chat failed", zap.Error(err))
			}
		}
	}
}

// Close 等待后台任务并释放资源
func (a *app) Close() {
	if a.trajectory != nil {
		a.trajectory.Close()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close failed", zap.Error(err))
		}
	}
}
