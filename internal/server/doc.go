// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 captain 的旁路 HTTP 服务器，用于暴露 Prometheus
指标与存活探针。

# 核心类型

  - Manager：封装 net/http.Server 与监听器，提供非阻塞 Start、
    阻塞式 Run 与幂等的 Shutdown。
  - Config：监听地址、读写超时与优雅关闭超时。

# 主要能力

  - MetricsHandler：基于给定 Gatherer 提供 /metrics 与 /healthz。
  - Run：ctx 结束或服务异常退出时自动优雅关闭，适合放入 errgroup。
  - Errors：异步错误通道，供调用方监控服务异常。
*/
package server
