package main

import "testing"

func TestPreview(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short text", 20, "short text"},
		{"line one\n\n  line   two", 50, "line one line two"},
		{"abcdef", 3, "abc..."},
		{"ñandú", 2, "ña..."},
	}

	for _, tt := range tests {
		if got := preview(tt.in, tt.n); got != tt.want {
			t.Errorf("preview(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
