// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 captain 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、rag 等
上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Message / ImageContent：对话消息（纯文本或图文混合）
  - Screenshot            ：一帧屏幕截图（像素缓冲 + JPEG 编码）
  - Event / ScreenshotEvent：轨迹日志中的一条事件
  - EnrichmentState       ：截图富化（描述 + 向量）的进度
  - Error / ErrorCode     ：结构化错误体系

# 主要能力

  - 截图像素级比较：Screenshot.Equal / CountMatchingPixels
  - 截图转消息：Screenshot.ToMessage
  - 事件深拷贝：Event.Clone，供只读快照使用
*/
package types
