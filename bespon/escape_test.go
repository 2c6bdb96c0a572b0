package bespon

import (
	"errors"
	"testing"
)

// ============================================================
// Escape Codec Tests
// ============================================================

func TestUnescape(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`plain`, "plain"},
		{`a\nb`, "a\nb"},
		{`a\tb`, "a\tb"},
		{`a\\b`, `a\b`},
		{`\"quoted\"`, `"quoted"`},
		{`\'`, "'"},
		{"\\`", "`"},
		{`\a\b\f\r\v`, "\a\b\f\r\v"},
		{`\e`, "\x1b"},
		{`\0`, "\x00"},
		{`\x41`, "A"},
		{`é`, "é"},
		{`\u{e9}`, "é"},
		{`\u{1f600}`, "\U0001F600"},
		{`\U0001f600`, "\U0001F600"},
		{"a\\\nb", "ab"},
		{"a\\   \nb", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := (Unescaper{}).Unescape(tt.input)
			if err != nil {
				t.Fatalf("Unescape(%q) failed: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("Unescape(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestUnescape_Errors(t *testing.T) {
	tests := []string{
		`\q`,
		`\x4`,
		`\x`,
		`\u12`,
		`\u{}`,
		`\u{110000}`,
		`\ud800`,
		`\`,
		`\ x`,
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := (Unescaper{}).Unescape(input)
			if err == nil {
				t.Fatalf("Unescape(%q) succeeded, want error", input)
			}
			if !errors.Is(err, &Error{Kind: ErrInvalidEscape}) {
				t.Errorf("error = %v, want ErrInvalidEscape", err)
			}
		})
	}
}

func TestUnescape_BytesMode(t *testing.T) {
	got, err := (Unescaper{BytesMode: true}).Unescape(`\xff\x00a`)
	if err != nil {
		t.Fatalf("Unescape failed: %v", err)
	}
	if got != "\xff\x00a" {
		t.Errorf("Unescape = %q, want raw bytes", got)
	}

	for _, input := range []string{`\u0041`, `\U00000041`} {
		if _, err := (Unescaper{BytesMode: true}).Unescape(input); err == nil {
			t.Errorf("Unescape(%q) in bytes mode succeeded, want error", input)
		}
	}
}

func TestEscape(t *testing.T) {
	tests := []struct {
		name     string
		esc      Escaper
		input    string
		delim    byte
		inline   bool
		expected string
	}{
		{"plain", Escaper{}, "plain", '"', true, "plain"},
		{"delimiter", Escaper{}, `a"b`, '"', true, `a\"b`},
		{"other quote kept", Escaper{}, "a'b", '"', true, "a'b"},
		{"backslash", Escaper{}, `a\b`, '"', true, `a\\b`},
		{"newline inline", Escaper{}, "a\nb", '"', true, `a\nb`},
		{"newline block", Escaper{}, "a\nb", '"', false, "a\nb"},
		{"control", Escaper{}, "a\x01b", '"', true, `a\u0001b`},
		{"non-ascii kept", Escaper{}, "café", '"', true, "café"},
		{"only ascii", Escaper{OnlyASCII: true}, "café", '"', true, `caf\u00e9`},
		{"brace escapes", Escaper{OnlyASCII: true, BraceEscapes: true}, "café", '"', true, `caf\u{e9}`},
		{"x escapes", Escaper{OnlyASCII: true, XEscapes: true}, "café", '"', true, `caf\xe9`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.esc.Escape(tt.input, tt.delim, tt.inline)
			if got != tt.expected {
				t.Errorf("Escape(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEscapeRune(t *testing.T) {
	tests := []struct {
		esc      Escaper
		r        rune
		expected string
	}{
		{Escaper{}, '\n', `\n`},
		{Escaper{}, 0, `\0`},
		{Escaper{}, 0x1b, `\e`},
		{Escaper{}, 'é', `\u00e9`},
		{Escaper{}, 0x1f600, `\U0001f600`},
		{Escaper{BraceEscapes: true}, 0x1f600, `\u{1f600}`},
		{Escaper{XEscapes: true}, 'é', `\xe9`},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.esc.EscapeRune(tt.r); got != tt.expected {
				t.Errorf("EscapeRune(%q) = %q, want %q", tt.r, got, tt.expected)
			}
		})
	}
}
