// Package config 提供 styleflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → STYLEFLOW_* 环境变量 的顺序叠加，
// 各后端、缓存与限流器的配置结构由所属包定义，这里只负责组装与校验。
package config
