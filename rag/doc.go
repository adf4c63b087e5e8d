// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 提供内存中的向量相似度检索，供上下文组装按查询召回截图。

# 核心类型

  - EmbeddedDocument：向量与其对应的任意文档
  - SearchResult：一次命中，Distance 为 1 - 余弦相似度

# 主要能力

  - CosineDistance：维度不一致返回 ErrDimensionMismatch，零向量返回 ErrZeroNorm
  - TopK：对候选集做精确检索，按距离升序返回至多 k 个结果，零向量与维度不符的候选被跳过
*/
package rag
