// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 screen 提供截图来源。

captain 不直接访问显示设备，而是读取外部录屏工具写入目录的
PNG/JPEG 帧：

  - DirectoryCapturer 返回目录中最新的一帧
  - Watcher 基于 fsnotify 在新帧出现时推送截图，fsnotify 不可用
    时退化为轮询

没有可用帧时返回 ErrNoDisplay，解码失败同样归类为
RESOURCE_UNAVAILABLE。
*/
package screen
