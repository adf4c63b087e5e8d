// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供跨模型服务商的通用适配，是 openaicompat 与 anthropic
两个具体实现的公共基础层：请求/响应转换、错误映射与重试包装。

# 核心类型

  - BaseProviderConfig：所有 Provider 共享的基础配置（APIKey、BaseURL、Model、Timeout）
  - OpenAICompat* 系列：OpenAI 兼容 API 的请求/响应结构体，图片以 data URL 发送
  - RetryableProvider：仅对 Retryable 错误做指数退避重试的 Provider 包装器
  - RetryConfig：重试策略配置（最大次数、初始延迟、退避因子）

# 核心函数

  - MapHTTPError：将 HTTP 状态码映射为 llm.Error（含 Retryable 标记）
  - TransportError / MissingCredentials：网络失败与缺少凭证的标准错误
  - ConvertMessagesToOpenAI：统一消息格式转换，多图消息转换为 content parts
  - ToLLMChatResponse：OpenAI 兼容响应到 llm.ChatResponse 的转换
  - ChooseModel：按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
