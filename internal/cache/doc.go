// 版权所有 2024 Footprint Studio Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 封装 styleflow 唯一的 Redis 连接，供转换结果缓存与
按用户并发限制共用。

# 键空间

所有键都带 Config.KeyPrefix 前缀。结果缓存写 JSON 值；
并发限制使用计数键，由 Lua 脚本原子地增减，计数归零即删除。

# 操作

  - GetJSON / SetJSON / Delete：结果缓存读写，未命中返回 ErrCacheMiss，
    可用 IsCacheMiss 判断。
  - AcquireSlot / ReleaseSlot：超过上限时不占用名额，
    键带 TTL，进程崩溃后名额会自行过期。
  - Ping / Healthy：HealthCheckInterval 大于 0 时后台定期 Ping，
    /ready 的 redis 检查直接调用 Ping。

Redis 不可用时调用方降级：缓存视为未命中，限流放行。
Close 停止后台检查并关闭客户端。
*/
package cache
