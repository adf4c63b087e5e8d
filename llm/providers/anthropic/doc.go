// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 claude 提供 Anthropic Claude 系列模型的 Provider 适配实现，
将统一请求映射到 Anthropic Messages API（/v1/messages）。

# 协议差异

  - 认证使用 x-api-key 请求头（非 Bearer Token）
  - system 消息从 messages 数组中提取，单独传递到 system 字段
  - 截图以 {"type":"image","source":{"type":"base64",...}} 块内联，位于文本块之前
  - 未显式指定 max_tokens 时使用 4096
*/
package claude
