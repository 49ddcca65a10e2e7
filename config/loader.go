// =============================================================================
// 📦 styleflow 配置加载器
// =============================================================================
// 叠加顺序: 默认值 → YAML 文件 → 环境变量
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("styleflow.yaml").
//	    Strict().
//	    Load()
//
// YAML 中的 ${NAME} 在解析前替换为环境变量值，便于把密钥留在环境中。
// 后端凭证（GOOGLE_AI_API_KEY / REPLICATE_API_TOKEN）与 AI_PROVIDER
// 不经过加载器，由后端在每次调用时读取。
// =============================================================================
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "STYLEFLOW"

// Loader builds a Config from defaults, an optional YAML file and the
// environment.
type Loader struct {
	path       string
	prefix     string
	getenv     func(string) string
	strict     bool
	validators []func(*Config) error
}

// NewLoader returns a loader that reads the process environment.
func NewLoader() *Loader {
	return &Loader{prefix: DefaultEnvPrefix, getenv: os.Getenv}
}

// WithConfigPath 设置 YAML 文件路径，文件不存在时跳过
func (l *Loader) WithConfigPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnvPrefix 替换 STYLEFLOW 前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.prefix = prefix
	return l
}

// WithEnvLookup 替换环境变量来源，测试中传入 map
func (l *Loader) WithEnvLookup(getenv func(string) string) *Loader {
	l.getenv = getenv
	return l
}

// Strict rejects YAML keys that do not map to a Config field.
func (l *Loader) Strict() *Loader {
	l.strict = true
	return l
}

// WithValidator 追加在加载完成后执行的校验
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load returns the merged configuration. It does not call Config.Validate.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := l.applyFile(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", l.path, err)
	}
	if err := l.applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// =============================================================================
// 📄 YAML
// =============================================================================

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expand 替换 ${NAME}；未设置的变量替换为空串
func (l *Loader) expand(data []byte) []byte {
	return placeholder.ReplaceAllFunc(data, func(m []byte) []byte {
		name := placeholder.FindSubmatch(m)[1]
		return []byte(l.getenv(string(name)))
	})
}

func (l *Loader) applyFile(cfg *Config) error {
	if l.path == "" {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(l.expand(data)))
	dec.KnownFields(l.strict)
	// 空文件解码返回 io.EOF，等同于无覆盖
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}

// =============================================================================
// 🌱 环境变量
// =============================================================================

var durationType = reflect.TypeOf(time.Duration(0))

// applyEnv 按 env 标签拼出 PREFIX_SECTION_FIELD 键并覆盖非空值
func (l *Loader) applyEnv(cfg *Config) error {
	var errs []error
	walkEnv(reflect.ValueOf(cfg).Elem(), l.prefix, func(key string, field reflect.Value) {
		raw := l.getenv(key)
		if raw == "" {
			return
		}
		if err := assign(field, raw); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, raw, err))
		}
	})
	return errors.Join(errs...)
}

// walkEnv 对每个带 env 标签的叶子字段调用 visit
func walkEnv(v reflect.Value, prefix string, visit func(key string, field reflect.Value)) {
	t := v.Type()
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			walkEnv(field, key, visit)
			continue
		}
		if field.CanSet() {
			visit(key, field)
		}
	}
}

// assign 把字符串解析为字段类型；字符串切片按逗号拆分并去掉空项
func assign(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items).Convert(field.Type()))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
