// Copyright (c) Footprint Studio Authors.
// Licensed under the MIT License.

/*
Package main 提供 Styleflow 服务端程序入口。

# 概述

cmd/styleflow 是风格转换服务的可执行入口，提供 HTTP API 服务、
单次命令行转换、风格目录查询、健康检查和版本查询等子命令。程序支持
YAML 配置文件与 STYLEFLOW_ 环境变量、结构化日志（zap）、Prometheus
指标与 OpenTelemetry 追踪。

# 核心类型

  - Server：     组装后端注册表、编排器、缓存与处理器，管理 API 与 Metrics 双端口
  - Middleware： HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、transform、styles、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、Metrics、SecurityHeaders、
    RequestLogger、CORS、RateLimiter（基于 IP）、APIKeyAuth、JWTAuth
  - 后端优先级：nano-banana 在前，replicate 作为降级
  - Redis 不可用时关闭结果缓存与并发限制，服务照常启动
  - 优雅关闭：信号 → 关闭 API → 关闭 Metrics → 关闭 Redis → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
