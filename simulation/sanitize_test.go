package simulation

import (
	"encoding/json"
	"strings"
	"testing"
)

func sanitizeJSON(t *testing.T, raw string) error {
	t.Helper()
	var tree any
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		t.Fatalf("test input is not valid JSON: %v", err)
	}
	return sanitizeValue(tree, 0)
}

func TestSanitizeAcceptsNormalPayload(t *testing.T) {
	raw := `{"pieces":[{"owner":"p1","pieceid":0,"x":1.5,"y":-2,"vx":0,"vy":0,"status":"in"}],"boardBefore":800,"boardAfter":750}`
	if err := sanitizeJSON(t, raw); err != nil {
		t.Errorf("expected payload to pass, got %v", err)
	}
}

func TestSanitizeAcceptsScalarsAndNull(t *testing.T) {
	for _, raw := range []string{`null`, `true`, `42`, `"hello"`, `[1, "a", null]`} {
		if err := sanitizeJSON(t, raw); err != nil {
			t.Errorf("sanitize(%s) = %v, want nil", raw, err)
		}
	}
}

func TestSanitizeRejectsReservedKeys(t *testing.T) {
	for _, key := range []string{"__proto__", "prototype", "constructor"} {
		raw := `{"` + key + `": {"polluted": true}}`
		err := sanitizeJSON(t, raw)
		if err == nil {
			t.Errorf("expected key %q to be rejected", key)
		}
	}
}

func TestSanitizeRejectsNestedReservedKey(t *testing.T) {
	raw := `{"pieces":[{"meta":{"__proto__":1}}]}`
	if err := sanitizeJSON(t, raw); err == nil {
		t.Error("expected nested reserved key to be rejected")
	}
}

func TestSanitizeRejectsExcessiveDepth(t *testing.T) {
	raw := strings.Repeat(`{"a":`, 12) + `1` + strings.Repeat(`}`, 12)
	if err := sanitizeJSON(t, raw); err == nil {
		t.Error("expected deeply nested payload to be rejected")
	}
}

func TestSanitizeAllowsDepthAtLimit(t *testing.T) {
	raw := strings.Repeat(`{"a":`, 9) + `1` + strings.Repeat(`}`, 9)
	if err := sanitizeJSON(t, raw); err != nil {
		t.Errorf("expected payload within depth limit to pass, got %v", err)
	}
}
