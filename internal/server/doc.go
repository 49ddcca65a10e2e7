// Copyright (c) Footprint Studio Authors.
// Licensed under the MIT License.

/*
Package server 提供 HTTP/HTTPS 服务器生命周期管理，支持非阻塞启动、
基于 context 的阻塞运行与优雅关闭。

# 核心类型

  - Manager：HTTP 服务器管理器，持有 http.Server、net.Listener
    与异步错误通道。styleflow 的 API 服务与 metrics 服务各使用一个实例。
  - Config：监听地址、读写超时、优雅关闭超时与可选的 TLS 证书。

# 主要能力

  - Start：后台 goroutine 中运行服务，配置证书时使用 tlsutil 的加固 TLS。
  - Run：阻塞直到 ctx 取消（通常来自 signal.NotifyContext）或服务异常，
    然后在 ShutdownTimeout 内排空进行中的转换请求。
  - ListenAddr：返回实际监听地址，便于 ":0" 端口的测试。
*/
package server
