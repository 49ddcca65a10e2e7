// Copyright (c) Footprint Studio Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 Styleflow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了风格转换、风格目录、后端状态与健康检查端点，
以及统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口，
通过 Swagger 注解生成 API 文档。

# 核心类型

  - TransformHandler：风格转换，支持结果缓存与每用户并发限制
  - StyleHandler：风格列表（搜索、分页）与单个风格详情
  - ProviderHandler：已注册后端及其凭证状态
  - HealthHandler：服务健康检查（/health, /healthz, /ready）
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo：结构化错误信息，含 code、message、provider、retryable

# 错误映射

HTTP 状态码只由错误码决定：INVALID_REQUEST/INVALID_STYLE → 400，
UNKNOWN_STYLE → 404，CONCURRENCY_LIMIT → 429，PROVIDER_ERROR/EMPTY_OUTPUT → 502，
NOT_CONFIGURED → 503，TIMEOUT → 504。
*/
package handlers
