// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，用于跨会话复用描述文本的嵌入向量。

# 核心类型

  - Manager：持有 Redis 客户端。GetVectors 用一次 MGET 取回一批向量，
    SetVectors 用 pipeline 写入；所有键自动附加 KeyPrefix。
  - EncodeVector/DecodeVector：向量以小端 float32 字节串存储。
  - Config：地址、密码、键前缀、默认 TTL 与健康检查间隔等参数。

# 主要能力

  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警，Close 时退出。
  - 错误语义：未命中与损坏的条目在结果中为 nil；ErrClosed 表示已关闭。
*/
package cache
