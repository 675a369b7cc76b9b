package utils

import (
	"strings"
	"testing"
)

func TestSafeAssert(t *testing.T) {
	if v, ok := SafeAssert[string](any("hello")); !ok || v != "hello" {
		t.Errorf("Expected (hello, true), got (%q, %v)", v, ok)
	}
	if v, ok := SafeAssert[int](any("hello")); ok || v != 0 {
		t.Errorf("Expected (0, false), got (%d, %v)", v, ok)
	}
	if v, ok := SafeAssert[string](nil); ok || v != "" {
		t.Errorf("Expected (\"\", false) for nil, got (%q, %v)", v, ok)
	}
}

func TestMustAssert(t *testing.T) {
	if v := MustAssert[int](any(42), "test"); v != 42 {
		t.Errorf("Expected 42, got %d", v)
	}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected panic on failed assertion")
		}
		msg, _ := r.(string)
		if !strings.Contains(msg, "test context") {
			t.Errorf("Expected panic message to name the context, got %q", msg)
		}
	}()
	MustAssert[int](any("nope"), "test context")
}

func TestGetMapField(t *testing.T) {
	m := map[string]any{
		"name":  "automaker",
		"count": 3,
	}

	name, err := GetMapField[string](m, "name")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if name != "automaker" {
		t.Errorf("Expected automaker, got %q", name)
	}

	if _, err := GetMapField[string](m, "missing"); err == nil {
		t.Error("Expected error for missing field")
	}
	if _, err := GetMapField[string](m, "count"); err == nil {
		t.Error("Expected error for wrong type")
	}
}

func TestGetMapFieldOr(t *testing.T) {
	m := map[string]any{"status": "running"}

	if got := GetMapFieldOr(m, "status", "unknown"); got != "running" {
		t.Errorf("Expected running, got %q", got)
	}
	if got := GetMapFieldOr(m, "missing", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %q", got)
	}
	if got := GetMapFieldOr(m, "status", 7); got != 7 {
		t.Errorf("Expected default 7 on type mismatch, got %d", got)
	}
}
