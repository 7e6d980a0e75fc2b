package utils

import "testing"

func TestTruncate(t *testing.T) {
	if got := Truncate("short question", 50); got != "short question" {
		t.Fatalf("short input should pass through, got %q", got)
	}
	long := "What is the recommended nitrogen application rate for winter wheat on clay soils?"
	got := Truncate(long, 50)
	if len([]rune(got)) > 51 { // 50 runes + ellipsis
		t.Fatalf("truncated title too long: %q", got)
	}
	if got[len(got)-len("…"):] != "…" {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}
	if got := Truncate("  padded  ", 50); got != "padded" {
		t.Fatalf("expected trimmed output, got %q", got)
	}
}

func TestStr(t *testing.T) {
	if Str(nil) != "" {
		t.Fatalf("nil should stringify empty")
	}
	if Str("x") != "x" || Str(42) != "42" {
		t.Fatalf("unexpected Str output")
	}
}
