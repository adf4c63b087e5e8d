// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、请求与响应模型、
错误语义以及中间件链。

# 概述

上层组件（冗余检测、截图描述、自动补全）只依赖 [Provider] 与
[CompleteText]，不关心具体服务商。服务商适配位于 providers 子包，
按名称构造位于 factory 子包。

# 核心类型

  - [Provider]：Completion / Name
  - [ChatRequest] / [ChatResponse]：统一的请求与响应，消息可携带图片
  - [Error]：带错误码、HTTP 状态与 Retryable 标记的服务商错误
  - [Chain] / [Middleware]：请求处理链，[Wrap] 把链套在 Provider 上

# 中间件

  - [LoggingMiddleware]：请求与失败日志
  - [TimeoutMiddleware]：单次请求超时
  - [RecoveryMiddleware]：恢复 panic 并转换为 [PanicError]
  - [MetricsMiddleware]：按 provider/model 记录次数、耗时与 token
  - [TracingMiddleware]：为每次请求创建 llm.completion span

# 辅助函数

  - [CompleteText]：发送请求并取第一条回复文本，错误统一为 types.Error
  - [ExtractFencedBlock]：提取回复中的 ``` 代码块
*/
package llm
