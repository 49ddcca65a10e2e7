// Copyright (c) Footprint Studio Authors.
// Licensed under the MIT License.

/*
Package transform 编排多后端图像风格转换。

# 概述

Orchestrator 是转换的唯一入口：先校验风格 ID，再按优先级顺序选择已配置的
后端（显式选项 > AI_PROVIDER 环境变量 > 注册表默认后端），对每个后端使用
独立的重试预算执行，失败后依次降级到下一个已配置后端。所有后端都失败时，
返回最后一个后端的错误。

# 核心类型

  - Adapter / Preparer：后端契约；Prepare 在重试循环前执行一次
  - Registry：按注册顺序排列优先级的后端注册表
  - Orchestrator：风格校验、后端选择、重试与降级
  - ResultCache：基于 Redis 的转换结果缓存（7 天 TTL，故障不外泄）
  - Recorder：指标钩子，由 internal/metrics.Collector 实现

# 配置读取

后端凭证与首选后端在每次调用时重新读取，不做跨调用缓存。
*/
package transform
