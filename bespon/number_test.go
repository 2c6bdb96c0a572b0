package bespon

import (
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"
)

// ============================================================
// Numeric Conversion Tests
// ============================================================

func parseScalar(t *testing.T, lit string, opts *LoadOptions) *Value {
	t.Helper()
	v, err := Parse("k = "+lit, opts)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", lit, err)
	}
	got := v.Get("k")
	if got == nil {
		t.Fatalf("Parse(%q): key missing", lit)
	}
	return got
}

func TestParse_Integers(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"0", 0},
		{"123", 123},
		{"-17", -17},
		{"+42", 42},
		{"1_000_000", 1000000},
		{"0x1f", 31},
		{"0xDEAD_beef", 0xdeadbeef},
		{"0o17", 15},
		{"0b1011", 11},
		{"-0x10", -16},
		{"9223372036854775807", math.MaxInt64},
		{"-9223372036854775808", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v := parseScalar(t, tt.input, nil)
			n, err := v.AsInt()
			if err != nil {
				t.Fatalf("AsInt failed: %v", err)
			}
			if n != tt.expected {
				t.Errorf("AsInt = %d, want %d", n, tt.expected)
			}
		})
	}
}

func TestParse_Floats(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"3.14", 3.14},
		{"-2.5", -2.5},
		{"1e10", 1e10},
		{"6.02e+23", 6.02e23},
		{"1_0.5", 10.5},
		{"0x1.8p3", 12.0},
		{"0x2p-1", 1.0},
		{"inf", math.Inf(1)},
		{"-inf", math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v := parseScalar(t, tt.input, nil)
			f, err := v.AsFloat()
			if err != nil {
				t.Fatalf("AsFloat failed: %v", err)
			}
			if f != tt.expected {
				t.Errorf("AsFloat = %g, want %g", f, tt.expected)
			}
		})
	}
}

func TestParse_NaN(t *testing.T) {
	v := parseScalar(t, "nan", nil)
	f, err := v.AsFloat()
	if err != nil {
		t.Fatalf("AsFloat failed: %v", err)
	}
	if !math.IsNaN(f) {
		t.Errorf("AsFloat = %g, want NaN", f)
	}
}

func TestParse_NoIntegers(t *testing.T) {
	opts := DefaultLoadOptions()
	opts.Integers = false
	v := parseScalar(t, "42", opts)
	if v.Kind() != KindFloat {
		t.Fatalf("Kind = %s, want float", v.Kind())
	}
	f, err := v.AsFloat()
	if err != nil || f != 42.0 {
		t.Errorf("AsFloat = %g, %v, want 42", f, err)
	}
}

func TestParse_NumericOverflow(t *testing.T) {
	t.Run("integer", func(t *testing.T) {
		_, err := Parse("k = 9223372036854775808", nil)
		if !errors.Is(err, &Error{Kind: ErrNumericOverflow}) {
			t.Errorf("error = %v, want ErrNumericOverflow", err)
		}
	})

	t.Run("float", func(t *testing.T) {
		_, err := Parse("k = 1e400", nil)
		if !errors.Is(err, &Error{Kind: ErrNumericOverflow}) {
			t.Errorf("error = %v, want ErrNumericOverflow", err)
		}
	})

	t.Run("float overflow to inf", func(t *testing.T) {
		opts := DefaultLoadOptions()
		opts.FloatOverflowToInf = true
		v := parseScalar(t, "1e400", opts)
		f, err := v.AsFloat()
		if err != nil {
			t.Fatalf("AsFloat failed: %v", err)
		}
		if !math.IsInf(f, 1) {
			t.Errorf("AsFloat = %g, want +inf", f)
		}
	})
}

func TestParse_Complex(t *testing.T) {
	opts := DefaultLoadOptions()
	opts.ExtendedTypes = true

	tests := []struct {
		input    string
		expected complex128
	}{
		{"2i", complex(0, 2)},
		{"3+4i", complex(3, 4)},
		{"1.5-0.5i", complex(1.5, -0.5)},
		{"-1-1i", complex(-1, -1)},
		{"1e2+2e1i", complex(100, 20)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v := parseScalar(t, tt.input, opts)
			c, err := v.AsComplex()
			if err != nil {
				t.Fatalf("AsComplex failed: %v", err)
			}
			if c != tt.expected {
				t.Errorf("AsComplex = %v, want %v", c, tt.expected)
			}
		})
	}
}

func TestParse_Rational(t *testing.T) {
	opts := DefaultLoadOptions()
	opts.ExtendedTypes = true

	tests := []struct {
		input    string
		expected *big.Rat
	}{
		{"1/3", big.NewRat(1, 3)},
		{"-5/7", big.NewRat(-5, 7)},
		{"6/4", big.NewRat(3, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v := parseScalar(t, tt.input, opts)
			r, err := v.AsRational()
			if err != nil {
				t.Fatalf("AsRational failed: %v", err)
			}
			if r.Cmp(tt.expected) != 0 {
				t.Errorf("AsRational = %s, want %s", r, tt.expected)
			}
		})
	}
}

func TestParse_ExtendedTypesGate(t *testing.T) {
	for _, lit := range []string{"3+4i", "2i", "1/3"} {
		t.Run(lit, func(t *testing.T) {
			_, err := Parse("k = "+lit, nil)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded without extended_types", lit)
			}
			if !strings.Contains(err.Error(), "extended_types") {
				t.Errorf("error = %q, want extended_types mention", err)
			}
		})
	}
}

func TestParse_ZeroDenominator(t *testing.T) {
	opts := DefaultLoadOptions()
	opts.ExtendedTypes = true
	_, err := Parse("k = 4/0", opts)
	if err == nil || !strings.Contains(err.Error(), "denominator is zero") {
		t.Errorf("error = %v, want zero denominator complaint", err)
	}
}
