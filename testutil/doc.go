// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 captain 测试的共享工具和辅助函数。

# 概述

testutil 包为 agent/* 下各组件的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessagesEqual / AssertEventKinds / AssertEventuallyTrue

# 子包

  - testutil/mocks: MockProvider（LLM Provider）、MockEmbedder
    （向量 Provider）、MockTyper（自动补全输出），均支持 Builder
    模式与错误注入
  - testutil/fixtures: 测试数据工厂，提供确定性的截图、模型回复
    与 ChatResponse 样例

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithResponse(fixtures.RedundancyReply(false))
	discard, err := detector.ShouldDiscardPrevious(ctx, prev, cur)
	require.NoError(t, err)
*/
package testutil
