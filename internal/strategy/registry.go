package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"sable/internal/engine"
)

// Factory 根据 profile 参数构造一个策略实例。
type Factory func(params map[string]any) (engine.Strategy, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// Register 注册策略工厂，重复注册视为编码错误直接 panic。
func Register(name string, fn Factory) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || fn == nil {
		panic("strategy: 注册参数非法")
	}
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("strategy: %s 重复注册", name))
	}
	factories[name] = fn
}

// New 按名称构造策略。
func New(name string, params map[string]any) (engine.Strategy, error) {
	factoryMu.RLock()
	fn, ok := factories[strings.ToLower(strings.TrimSpace(name))]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("未知策略: %s (可用: %s)", name, strings.Join(Names(), ", "))
	}
	return fn(params)
}

// Names 返回已注册的策略名，按字典序。
func Names() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register("sma_cross", NewSMACross)
	Register("rsi_reversal", NewRSIReversal)
	Register("macd_cross", NewMACDCross)
}

// paramInt 从 profile 参数里取整数，缺省回退。YAML 解码出的数字
// 可能是 int、int64 或 float64，这里统一收敛。
func paramInt(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func paramFloat(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return def
	}
}
