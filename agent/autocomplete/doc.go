// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 autocomplete 实现基于屏幕轨迹的自动补全会话。

Session 启动时向轨迹写入自动补全系统提示，随后按固定间隔截图
追加到轨迹。每次触发时：

 1. 立即截取一张新截图并追加
 2. 由轨迹组装上下文消息
 3. 请求主模型，从 fenced JSON 中解析 autocomplete 字段
 4. 通过 Typer 输出补全文本，并作为助手消息追加到轨迹

按键监听与键盘模拟不在本包范围内，调用方通过 Trigger 与
Typer 接入。
*/
package autocomplete
