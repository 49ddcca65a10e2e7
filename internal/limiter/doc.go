// Package limiter 提供基于 Redis 计数器的每用户并发转换限制。
//
// Acquire 使用 INCR 原子占位，超过上限时 DECR 回滚并拒绝；成功占位后设置
// 兜底 TTL。Release 使用 DECR 归还，计数归零时删除键。Redis 不可用时放行。
package limiter
