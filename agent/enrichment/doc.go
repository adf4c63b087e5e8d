// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 enrichment 为截图生成文本描述与向量，并写回轨迹。

# 流程

Pipeline.Run 对单张截图依次执行：

 1. 用视觉模型生成描述（系统提示 + 不含系统消息的对话历史 + 截图）
 2. 通过 Sink.SetDescription 写回描述
 3. 对描述做向量化
 4. 通过 Sink.SetEmbedding 写回向量

任一模型调用失败时通过 Sink.SetEnrichmentState 把槽位标记为
failed 并停止，不做重试。每次写回都是独立的加锁写入，Pipeline
除 Sink 之外不接触轨迹。

# 限流

所有模型请求（描述与向量化）共享一个 golang.org/x/time/rate
令牌桶，避免截图频繁时压垮上游。
*/
package enrichment
