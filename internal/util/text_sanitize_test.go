package util

import "testing"

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	in := "ab\x00cd\x01\x02\n\txy"
	out := SanitizeText(in)
	if out != "abcd\n\txy" {
		t.Fatalf("unexpected sanitized output: %q", out)
	}
}

func TestSnippetTruncates(t *testing.T) {
	out := Snippet("one  two\nthree four", 12)
	if out != "one two thre…" {
		t.Fatalf("unexpected snippet: %q", out)
	}
	if Snippet("short", 10) != "short" {
		t.Fatalf("short input should pass through")
	}
}
