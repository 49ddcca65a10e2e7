// MockAdapter 是图像后端的测试模拟实现。
//
// 支持固定结果、脚本化错误序列与配置状态切换。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/footprint-studio/styleflow/transform"
)

// MockAdapter 是 transform.Adapter 的模拟实现
type MockAdapter struct {
	mu sync.RWMutex

	name       string
	configured bool

	// 响应配置
	result  *transform.Result
	err     error
	script  []error
	prepErr error

	// 调用记录
	calls        []MockAdapterCall
	prepareCalls int
	transformFn  func(ctx context.Context, req *transform.Request) (*transform.Result, error)

	// 行为控制
	delay time.Duration
}

// MockAdapterCall 记录单次调用
type MockAdapterCall struct {
	Request *transform.Request
	Result  *transform.Result
	Error   error
}

// --- 构造函数和 Builder 方法 ---

// NewMockAdapter 创建已配置、总是成功的 MockAdapter
func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{
		name:       name,
		configured: true,
		result: &transform.Result{
			ImageBase64: "bW9jaw==",
			MimeType:    "image/png",
		},
	}
}

// WithResult 设置成功时返回的结果
func (m *MockAdapter) WithResult(res *transform.Result) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = res
	return m
}

// WithError 设置每次调用都返回的错误
func (m *MockAdapter) WithError(err error) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// FailTimes 让前 n 次调用返回 err，之后成功
func (m *MockAdapter) FailTimes(n int, err error) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.script = append(m.script, err)
	}
	return m
}

// WithPrepareError 让 Prepare 返回错误
func (m *MockAdapter) WithPrepareError(err error) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepErr = err
	return m
}

// WithConfigured 设置 IsConfigured 返回值
func (m *MockAdapter) WithConfigured(configured bool) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configured = configured
	return m
}

// WithDelay 设置模拟延迟
func (m *MockAdapter) WithDelay(d time.Duration) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithTransformFunc 设置自定义 Transform 实现
func (m *MockAdapter) WithTransformFunc(fn func(ctx context.Context, req *transform.Request) (*transform.Result, error)) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transformFn = fn
	return m
}

// --- transform.Adapter 实现 ---

// Name 返回后端名称
func (m *MockAdapter) Name() string { return m.name }

// IsConfigured 返回配置状态
func (m *MockAdapter) IsConfigured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configured
}

// Prepare 实现 transform.Preparer
func (m *MockAdapter) Prepare(_ context.Context, req *transform.Request) (*transform.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepareCalls++
	if m.prepErr != nil {
		return nil, m.prepErr
	}
	return req, nil
}

// Transform 实现 transform.Adapter
func (m *MockAdapter) Transform(ctx context.Context, req *transform.Request) (*transform.Result, error) {
	m.mu.Lock()
	delay := m.delay
	fn := m.transformFn
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	var (
		res *transform.Result
		err error
	)
	if fn != nil {
		res, err = fn(ctx, req)
	} else {
		res, err = m.next()
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockAdapterCall{Request: req, Result: res, Error: err})
	m.mu.Unlock()
	return res, err
}

func (m *MockAdapter) next() (*transform.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.script) > 0 {
		err := m.script[0]
		m.script = m.script[1:]
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	res := *m.result
	return &res, nil
}

// --- 调用记录查询 ---

// CallCount 返回 Transform 调用次数
func (m *MockAdapter) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// PrepareCount 返回 Prepare 调用次数
func (m *MockAdapter) PrepareCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prepareCalls
}

// Calls 返回调用记录副本
func (m *MockAdapter) Calls() []MockAdapterCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockAdapterCall(nil), m.calls...)
}

// LastCall 返回最后一次调用
func (m *MockAdapter) LastCall() (MockAdapterCall, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return MockAdapterCall{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// Reset 清空调用记录
func (m *MockAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.prepareCalls = 0
}

var (
	_ transform.Adapter  = (*MockAdapter)(nil)
	_ transform.Preparer = (*MockAdapter)(nil)
)
