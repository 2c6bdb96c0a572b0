package bespon

import (
	"math/big"
	"strconv"
	"strings"
)

// Numeric token conversion. The scanner guarantees shape; this layer
// produces typed values, applying the Integers, FloatOverflowToInf, and
// ExtendedTypes options.

func parseNumberToken(tok Token, src string, opts *LoadOptions) (*Value, error) {
	raw := strings.ReplaceAll(tok.Raw, "_", "")
	switch tok.NumKind {
	case NumInt:
		return parseIntLiteral(tok, raw, src, opts)
	case NumFloat:
		return parseFloatLiteral(tok, raw, src, opts)
	case NumComplex:
		if !opts.ExtendedTypes {
			return nil, newErr(ErrBadNumber, src, tok.Span.Start, "complex literals require extended_types")
		}
		return parseComplexLiteral(tok, raw, src, opts)
	case NumRational:
		if !opts.ExtendedTypes {
			return nil, newErr(ErrBadNumber, src, tok.Span.Start, "rational literals require extended_types")
		}
		return parseRationalLiteral(tok, raw, src)
	}
	return nil, newErr(ErrBadNumber, src, tok.Span.Start, "unclassified numeric literal %q", tok.Raw)
}

func parseIntLiteral(tok Token, raw, src string, opts *LoadOptions) (*Value, error) {
	if !opts.Integers && tok.NumBase == 10 {
		return parseFloatLiteral(tok, raw, src, opts)
	}
	// Base 0 handles the sign and the 0x/0o/0b prefixes; the scanner has
	// already rejected decimal leading zeros, so octal misreads cannot occur.
	n, err := strconv.ParseInt(raw, 0, 64)
	if err != nil {
		return nil, newErr(ErrNumericOverflow, src, tok.Span.Start, "integer %q does not fit in 64 bits", tok.Raw)
	}
	v := Int(n)
	if !opts.Integers {
		v = Float(float64(n))
	}
	v.pos = tok.Span.Start
	return v, nil
}

func parseFloatLiteral(tok Token, raw, src string, opts *LoadOptions) (*Value, error) {
	f, err := parseFloatComponent(raw, tok.Span.Start, src, opts)
	if err != nil {
		return nil, err
	}
	v := Float(f)
	v.pos = tok.Span.Start
	return v, nil
}

// parseFloatComponent parses a decimal or hex float, inf, or nan. Overflow
// converts to ±inf only under FloatOverflowToInf.
func parseFloatComponent(raw string, pos Position, src string, opts *LoadOptions) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		ne, isNum := err.(*strconv.NumError)
		if !isNum || ne.Err != strconv.ErrRange {
			return 0, newErr(ErrBadNumber, src, pos, "invalid float literal %q", raw)
		}
		if !opts.FloatOverflowToInf {
			return 0, newErr(ErrNumericOverflow, src, pos, "float %q overflows", raw)
		}
		// ParseFloat already saturated to ±inf.
	}
	return f, nil
}

func parseComplexLiteral(tok Token, raw, src string, opts *LoadOptions) (*Value, error) {
	if !strings.HasSuffix(raw, "i") {
		return nil, newErr(ErrBadNumber, src, tok.Span.Start, "complex literal %q must end in 'i'", tok.Raw)
	}
	realPart, imagPart := splitComplex(raw[:len(raw)-1])
	re := 0.0
	if realPart != "" {
		var err error
		re, err = parseFloatComponent(realPart, tok.Span.Start, src, opts)
		if err != nil {
			return nil, err
		}
	}
	im, err := parseFloatComponent(imagPart, tok.Span.Start, src, opts)
	if err != nil {
		return nil, err
	}
	v := Complex(complex(re, im))
	v.pos = tok.Span.Start
	return v, nil
}

// splitComplex separates "a±b" at the last sign that is neither leading nor
// an exponent sign. A missing real part yields ("", b).
func splitComplex(s string) (string, string) {
	split := -1
	for i := 1; i < len(s); i++ {
		c := s[i]
		if (c == '+' || c == '-') && s[i-1] != 'e' && s[i-1] != 'p' {
			split = i
		}
	}
	if split < 0 {
		return "", s
	}
	return s[:split], s[split:]
}

func parseRationalLiteral(tok Token, raw, src string) (*Value, error) {
	slash := strings.IndexByte(raw, '/')
	if slash < 0 {
		return nil, newErr(ErrBadNumber, src, tok.Span.Start, "rational literal %q has no denominator", tok.Raw)
	}
	num, err := strconv.ParseInt(raw[:slash], 0, 64)
	if err != nil {
		return nil, newErr(ErrNumericOverflow, src, tok.Span.Start, "rational numerator in %q does not fit in 64 bits", tok.Raw)
	}
	den, err := strconv.ParseInt(raw[slash+1:], 0, 64)
	if err != nil {
		return nil, newErr(ErrNumericOverflow, src, tok.Span.Start, "rational denominator in %q does not fit in 64 bits", tok.Raw)
	}
	if den == 0 {
		return nil, newErr(ErrBadNumber, src, tok.Span.Start, "rational denominator is zero")
	}
	v := Rational(big.NewRat(num, den))
	v.pos = tok.Span.Start
	return v, nil
}
