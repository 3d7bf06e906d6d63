package maintenance

import (
	"strconv"
	"strings"
	"testing"
)

func TestGenerateGameNameShape(t *testing.T) {
	for i := 0; i < 100; i++ {
		name := GenerateGameName()
		parts := strings.Split(name, " ")
		if len(parts) != 4 {
			t.Fatalf("name %q has %d parts, want 4", name, len(parts))
		}
		if !contains(adjectives, parts[0]) || !contains(adjectives, parts[1]) {
			t.Errorf("name %q: first two words must be adjectives", name)
		}
		if !contains(nouns, parts[2]) {
			t.Errorf("name %q: third word must be a noun", name)
		}
		n, err := strconv.Atoi(parts[3])
		if err != nil || n < 100 || n > 999 {
			t.Errorf("name %q: suffix must be a three-digit number", name)
		}
	}
}

func TestGenerateGameNameVariety(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		seen[GenerateGameName()] = true
	}
	if len(seen) < 50 {
		t.Errorf("only %d distinct names in 200 draws", len(seen))
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
