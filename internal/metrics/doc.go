// 版权所有 2024 Footprint Studio Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、图像转换、参考图、缓存与并发限制五个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。

# 核心类型

  - Collector：指标收集器，同时实现 transform.Recorder、
    transform.CacheObserver 与 limiter.Observer。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 转换指标：编排结果、单次后端调用、降级次数、token 与成本，
    按 provider/style 分组。
  - 参考图指标：拉取成功/失败计数与耗时。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 并发限制：拒绝计数。
*/
package metrics
