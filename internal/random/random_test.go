package random

import "testing"

func TestString(t *testing.T) {
	value, err := String(32)
	if err != nil {
		t.Fatalf("String failed: %v", err)
	}
	if len(value) != 64 {
		t.Errorf("got %d hex chars, want 64", len(value))
	}

	other, err := String(32)
	if err != nil {
		t.Fatalf("String failed: %v", err)
	}
	if value == other {
		t.Error("two draws produced the same value")
	}
}

func TestURLSafeString(t *testing.T) {
	value, err := URLSafeString(24)
	if err != nil {
		t.Fatalf("URLSafeString failed: %v", err)
	}
	if len(value) != 32 {
		t.Errorf("got %d chars, want 32", len(value))
	}

	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			t.Errorf("value contains non URL-safe rune %q", r)
		}
	}
}
