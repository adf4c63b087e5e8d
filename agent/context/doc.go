// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 context 把屏幕轨迹快照组装成发送给主模型的消息列表。

# 概述

模型上下文只能容纳有限数量的截图。Assembler 从最新到最旧遍历
快照：文本消息全部保留，非冗余截图在 RecencyBudget 之内直接放入，
窗口之外且已有向量的截图进入召回池。

# 召回

当调用方提供 query 时，召回池不超过 RetrievalBudget 则全部放入，
否则用 query 的向量做余弦 top-k。召回的截图按时间顺序作为一个
整体插在最后一条消息之前，最后一条消息通常就是用户的提问。

# 错误

  - query 向量化失败返回 TRANSPORT
  - 相似度检索失败（零向量、维度不一致）返回 RETRIEVAL_FAILED

# 预算

Estimate 用 llm/tokenizer 统计文本 token，图片按 ImageTokens
固定计价，并标记是否超出 ReservedTextTokens 与 MaxContextTokens。
*/
package context
