package model

import "testing"

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"x", `"x"`},
		{int64(3), "3"},
		{[]byte("abc"), "<3 bytes>"},
		{ID{Kind: "a:b", PK: int64(1)}, "a:b-1"},
		{[]ID{{Kind: "a:b", PK: int64(1)}, {Kind: "a:b", PK: "x"}}, "[a:b-1, a:b-x]"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
