// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 Captain 命令行入口。

# 概述

cmd/captain 装配轨迹、冗余检测、增强流水线、上下文组装与自动补全会话，
以截屏目录为输入，在用户按下回车时让主模型生成要输入的文本并写到 stdout；
shell 模式下则把每行输入作为对话消息，连同最新截图与历史一起发给主模型。
程序支持 YAML 配置与 CAPTAIN_ 前缀环境变量、结构化日志（zap）、
Prometheus 指标与 OpenTelemetry 追踪。

# 主要能力

  - 子命令：autocomplete（补全会话）、shell（对话会话）、version
  - Provider 链：factory 构造 → 重试包装 → Recovery/Tracing/Metrics/Logging 中间件
  - 向量缓存：配置 Redis 后为 embedding 加一层缓存，连接失败时降级
  - 截屏来源：定时轮询目录，或 capture.watch 打开后用 fsnotify 监听
  - 优雅关闭：SIGINT/SIGTERM、输入 q 或 exit → 停止循环 → 等待后台任务
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
