// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 trajectory 维护一次会话中按时间追加的消息与截图事件日志。

# 概述

Trajectory 是会话的唯一事实来源。事件只追加不删除，索引在整个
会话内保持稳定，后台任务通过索引回写字段。

# 追加截图

AppendScreenshot 先与最后一张保留的截图做像素比较，完全相同时
静默丢弃；否则追加新事件并向后台池提交两个任务：

  - 冗余检测：比较新截图与上一张截图，结论为丢弃时把上一张
    标记为冗余。失败时按不冗余处理
  - 增强：生成描述与向量，经由 Sink 写回

两个任务都不继承调用方的取消信号，只受 TaskTimeout 限制。
后台任务的失败只记录日志，从不返回给调用方。

# 并发

所有对事件列表的读写都经过同一把锁，且锁从不跨越模型调用。
Snapshot 返回深拷贝，组装上下文时不会与回写竞争。
*/
package trajectory
