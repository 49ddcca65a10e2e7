/*
Package providers 提供图像后端适配器的共享工具。

# 概述

子包 gemini 与 replicate 各自实现 transform.Adapter 与 transform.Preparer，
removebg 是独立的去背景客户端。本包只包含它们共用的部分：

  - ReadErrorMessage: 从非 2xx 响应体提取可读错误消息
  - MapHTTPError:     将上游状态码映射为 PROVIDER_ERROR
  - Credential:       静态凭证优先、否则按调用读取环境变量
*/
package providers
