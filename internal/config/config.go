package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 中文说明：
// 配置加载分四步：展开 include 链 → 按顺序合并进同一个 viper →
// mapstructure 解码 → 补默认值并校验。include 的文件先合并，主文件
// 最后合并，因此主文件里的键总是赢。

// Load 读取主配置文件及其 include 链。
func Load(path string) (*Config, error) {
	files, err := expandIncludes(path)
	if err != nil {
		return nil, err
	}

	merged := viper.New()
	merged.SetConfigType("yaml")
	for _, file := range files {
		settings, err := readSettings(file)
		if err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
		if err := merged.MergeConfigMap(settings); err != nil {
			return nil, fmt.Errorf("merging config failed (%s): %w", file, err)
		}
	}

	var cfg Config
	decode := func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}
	if err := merged.Unmarshal(&cfg, decode); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}

	explicit := make(keySet)
	markExplicitKeys("", merged.AllSettings(), explicit)
	cfg.applyDefaults(explicit)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readSettings(path string) (map[string]any, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v.AllSettings(), nil
}

// expandIncludes 深度优先展开 include 链，返回按合并顺序排好的文件列表
//（被包含者在前，包含者在后）。环与重复包含分别报错与去重。
func expandIncludes(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	walker := includeWalker{
		done:     make(map[string]bool),
		visiting: make(map[string]bool),
	}
	return walker.walk(abs)
}

type includeWalker struct {
	done     map[string]bool
	visiting map[string]bool
}

func (w *includeWalker) walk(path string) ([]string, error) {
	path = filepath.Clean(path)
	if w.visiting[path] {
		return nil, fmt.Errorf("include cycle detected: %s", path)
	}
	if w.done[path] {
		return nil, nil
	}
	w.visiting[path] = true
	defer func() {
		delete(w.visiting, path)
		w.done[path] = true
	}()

	includes, err := listedIncludes(path)
	if err != nil {
		return nil, fmt.Errorf("parsing include failed (%s): %w", path, err)
	}

	var ordered []string
	dir := filepath.Dir(path)
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(dir, inc)
		}
		sub, err := w.walk(inc)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, sub...)
	}
	return append(ordered, path), nil
}

func listedIncludes(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		if strs, ok := raw.([]string); ok {
			return trimNonEmpty(strs), nil
		}
		return nil, fmt.Errorf("include must be a string array")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include only supports strings")
		}
		out = append(out, str)
	}
	return trimNonEmpty(out), nil
}

func trimNonEmpty(items []string) []string {
	out := items[:0]
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// markExplicitKeys 记录配置文件里实际出现过的字段路径，
// 显式写 0/空串的字段不会被默认值覆盖。
func markExplicitKeys(prefix string, node any, dest keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, v := range val {
			markExplicitKeys(joinKey(prefix, k), v, dest)
		}
	case map[any]any:
		for k, v := range val {
			if key, ok := k.(string); ok {
				markExplicitKeys(joinKey(prefix, key), v, dest)
			}
		}
	case []any:
		dest.mark(prefix)
		for _, item := range val {
			markExplicitKeys(prefix, item, dest)
		}
	default:
		dest.mark(prefix)
	}
}

func joinKey(prefix, key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return prefix
	}
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
