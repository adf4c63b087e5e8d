// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 embedding 提供统一的文本嵌入（Embedding）接口，用于把屏幕截图描述
转换为向量，以便上下文组装时做语义检索。

# 核心接口

  - Provider：统一嵌入接口，定义 EmbedQuery、EmbedDocuments、Dimensions 等方法。
  - EmbeddingRequest / EmbeddingResponse：标准化的请求与响应模型。
  - BaseProvider：公共基类，封装 HTTP 请求、错误映射与分批辅助方法。
  - CachedProvider：以 cache.Manager（Redis）为后端的装饰器。

# 主要能力

  - OpenAI 实现：默认模型 text-embedding-3-small，1536 维。
  - 批量嵌入：超过 MaxBatchSize 的输入自动分批，并按 index 还原顺序。
  - 缓存：键为 sha256(model, text)，缓存故障降级为直接调用。
  - 安全 HTTP：通过 tlsutil.SecureHTTPClient 建立安全连接。

# 使用方式

	cfg := embedding.DefaultOpenAIConfig()
	cfg.APIKey = "sk-..."
	provider := embedding.NewOpenAIProvider(cfg)

	vec, err := provider.EmbedQuery(ctx, "搜索关键词")
*/
package embedding
