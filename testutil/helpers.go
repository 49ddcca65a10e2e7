// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	env := testutil.Env{"GOOGLE_AI_API_KEY": "k"}
//	dir := testutil.ReferenceDir(t, map[string]string{"pop_art/1.jpg": "jpeg"})
// =============================================================================
package testutil

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// 🌱 环境变量辅助
// =============================================================================

// Env 是可并发修改的环境变量表，Lookup 可替代 os.Getenv
type Env map[string]string

// Lookup 返回变量值
func (e Env) Lookup(key string) string {
	envMu.RLock()
	defer envMu.RUnlock()
	return e[key]
}

// Set 修改变量值，空值表示删除
func (e Env) Set(key, value string) {
	envMu.Lock()
	defer envMu.Unlock()
	if value == "" {
		delete(e, key)
		return
	}
	e[key] = value
}

var envMu sync.RWMutex

// =============================================================================
// 🖼️ 图像数据辅助
// =============================================================================

// TinyPNG 是 1x1 透明 PNG
var TinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// TinyPNGBase64 返回 TinyPNG 的 base64 编码
func TinyPNGBase64() string {
	return base64.StdEncoding.EncodeToString(TinyPNG)
}

// TinyPNGDataURI 返回 TinyPNG 的 data URI
func TinyPNGDataURI() string {
	return "data:image/png;base64," + TinyPNGBase64()
}

// ReferenceDir 在临时目录下写入参考图文件树，键为相对路径，返回根目录
func ReferenceDir(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("create reference dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write reference %s: %v", rel, err)
		}
	}
	return root
}

// =============================================================================
// ⏱️ 重试与数据
// =============================================================================

// NoSleep 是不真正等待的退避函数，用于消除测试中的重试延迟
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}
