package mapengine

import (
	"fmt"
)

// Filter：样式表达式（JSON 数组形式）
// 约束：Matches 只求值本服务用到的子集：== != get has ! all any coalesce；
// 未知运算符按不匹配处理
type Filter []any

// Get：["get", key]
func Get(key string) []any { return []any{"get", key} }

// Coalesce：["coalesce", ["get", k1], ["get", k2], ...]
func Coalesce(keys ...string) []any {
	out := []any{"coalesce"}
	for _, k := range keys {
		out = append(out, Get(k))
	}
	return out
}

// Eq：["==", lhs, value]
func Eq(lhs any, value any) Filter { return Filter{"==", lhs, value} }

// Has：["has", key]
func Has(key string) Filter { return Filter{"has", key} }

// Not：["!", f]
func Not(f Filter) Filter { return Filter{"!", []any(f)} }

// Matches：对要素属性求值
func (f Filter) Matches(props map[string]any) bool {
	if len(f) == 0 {
		return true
	}
	v, _ := eval([]any(f), props)
	b, ok := v.(bool)
	return ok && b
}

// Equal：按 JSON 文本比较两个表达式
func (f Filter) Equal(o Filter) bool { return fmt.Sprint([]any(f)) == fmt.Sprint([]any(o)) }

func eval(expr any, props map[string]any) (any, bool) {
	arr, ok := toSlice(expr)
	if !ok || len(arr) == 0 {
		return expr, true
	}
	op, ok := arr[0].(string)
	if !ok {
		return expr, true
	}
	args := arr[1:]
	switch op {
	case "get":
		if len(args) != 1 {
			return nil, false
		}
		k, _ := args[0].(string)
		v, ok := props[k]
		return v, ok
	case "has":
		if len(args) != 1 {
			return false, true
		}
		k, _ := args[0].(string)
		_, ok := props[k]
		return ok, true
	case "coalesce":
		for _, a := range args {
			if v, ok := eval(a, props); ok && v != nil {
				return v, true
			}
		}
		return nil, false
	case "==", "!=":
		if len(args) != 2 {
			return false, true
		}
		l, _ := eval(args[0], props)
		r, _ := eval(args[1], props)
		eq := looseEqual(l, r)
		if op == "!=" {
			return !eq, true
		}
		return eq, true
	case "!":
		if len(args) != 1 {
			return false, true
		}
		v, _ := eval(args[0], props)
		b, _ := v.(bool)
		return !b, true
	case "all":
		for _, a := range args {
			v, _ := eval(a, props)
			if b, _ := v.(bool); !b {
				return false, true
			}
		}
		return true, true
	case "any":
		for _, a := range args {
			v, _ := eval(a, props)
			if b, _ := v.(bool); b {
				return true, true
			}
		}
		return false, true
	}
	return false, true
}

func toSlice(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case Filter:
		return []any(x), true
	}
	return nil, false
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	return okA && okB && fa == fb
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
