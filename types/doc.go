// Copyright (c) Footprint Studio Authors.
// Licensed under the MIT License.

/*
Package types 提供 styleflow 服务的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 transform、api、cmd
等上层模块提供统一的错误契约与 Context 传播工具，以避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - 风格错误：UNKNOWN_STYLE（目录查询）与 INVALID_STYLE（转换请求）
  - 配置错误：NOT_CONFIGURED（缺少后端凭证，不重试）
  - 后端错误：PROVIDER_ERROR、EMPTY_OUTPUT（可重试）

# 主要能力

  - Context 传播：WithTraceID / WithRequestID / WithUserID
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 常用错误构造：NewInvalidRequestError / NewNotConfiguredError / NewProviderError
*/
package types
