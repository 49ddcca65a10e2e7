// Package replicate 实现基于 Replicate flux-kontext-pro 的备用转换后端。
//
// 源图必须是公网可访问的 http(s) URL。创建预测时携带 Prefer: wait，
// 预测在同步窗口内未结束时按 PollInterval 轮询 urls.get，最多 MaxPolls 次。
package replicate
