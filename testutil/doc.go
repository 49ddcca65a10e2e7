// Copyright 2026 Footprint Studio Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 styleflow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout，
    自动注册 Cleanup 防止泄漏
  - 环境变量: Env 可替代 os.Getenv，用于按调用读取凭证的后端
  - 图像数据: TinyPNG / TinyPNGBase64 / TinyPNGDataURI，
    ReferenceDir 生成临时参考图目录
  - 重试辅助: NoSleep 消除退避等待
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockAdapter（图像后端），支持 Builder 模式、
    脚本化错误序列与调用计数

# 使用示例

	ctx := testutil.TestContext(t)
	primary := mocks.NewMockAdapter("nano-banana").FailTimes(3, err)
	res, err := primary.Transform(ctx, req)
*/
package testutil
