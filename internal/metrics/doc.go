// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
LLM 调用、截图轨迹、上下文组装与缓存四个维度。

# 概述

Collector 通过 promauto.With 注册到调用方传入的 Registerer，
测试可以使用独立的 prometheus.Registry，互不冲突。
所有 Record* 方法对 nil *Collector 安全，组件可以不配置指标。

# 主要能力

  - LLM 指标：请求总数、请求耗时、Token 用量（prompt/completion），按 provider/model 分组。
  - 轨迹指标：追加/去重截图数、冗余检测结论、增强结果与耗时、后台任务拒绝数。
  - 组装指标：上下文组装耗时、检索命中截图数。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
*/
package metrics
