// simulation/sanitize.go
package simulation

import (
	"fmt"
)

// maxSanitizeDepth 防止深度嵌套的 JSON 撑爆递归或引擎侧的解析器。
const maxSanitizeDepth = 10

// reservedKeys 是 JS 原型链污染的惯用键名。引擎是个脚本运行时，
// 这些键一律拒绝而不是静默剥离，让坏输入在边界上立刻暴露。
var reservedKeys = map[string]struct{}{
	"__proto__":   {},
	"prototype":   {},
	"constructor": {},
}

// sanitizeValue 校验 json.Unmarshal 解码出的值树：仅允许
// null/bool/数值/字符串作为叶子，对象键不得命中保留键，嵌套深度受限。
// 任何违规都返回错误，调用方应整体拒绝该载荷。
func sanitizeValue(v any, depth int) error {
	if depth > maxSanitizeDepth {
		return fmt.Errorf("payload nested deeper than %d levels", maxSanitizeDepth)
	}
	switch val := v.(type) {
	case nil, bool, float64, string:
		return nil
	case []any:
		for i, item := range val {
			if err := sanitizeValue(item, depth+1); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		return nil
	case map[string]any:
		for key, item := range val {
			if _, bad := reservedKeys[key]; bad {
				return fmt.Errorf("reserved key %q", key)
			}
			if err := sanitizeValue(item, depth+1); err != nil {
				return fmt.Errorf("key %q: %w", key, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
}
