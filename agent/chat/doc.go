// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 chat 实现基于屏幕轨迹的对话会话（captain shell）。

Session 启动时把开场白作为助手消息写入轨迹并输出，随后按固定间隔
截图追加到轨迹。每条用户消息：

 1. 立即截取一张新截图并追加
 2. 把用户消息追加到轨迹
 3. 由轨迹组装上下文消息（可选地以用户消息作为召回 query）
 4. 请求主模型，回复原样输出并作为助手消息追加到轨迹

截图失败时本轮放弃，用户消息不进入轨迹；模型请求失败时用户消息保留.
*/
package chat
