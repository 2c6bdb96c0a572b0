package bespon

import (
	"encoding/binary"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// Code point classification for the BespON grammar. Newline handling covers
// the full Unicode newline set; everything else is ASCII-first with optional
// Unicode identifier support.

const (
	runeNEL = '\u0085'
	runeLS  = '\u2028'
	runePS  = '\u2029'
)

// isNewlineRune reports whether r begins a line break. CRLF is handled by
// the scanner as a single break.
func isNewlineRune(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', runeNEL, runeLS, runePS:
		return true
	}
	return false
}

// isIndentByte reports whether b is an indentation character.
func isIndentByte(b byte) bool {
	return b == ' ' || b == '\t'
}

func isUnicodeWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || isNewlineRune(r) {
		return true
	}
	return unicode.IsSpace(r)
}

func isDecDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isHexDigit(b byte) bool {
	return isDecDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func isLowerHexDigit(b byte) bool {
	return isDecDigit(b) || (b >= 'a' && b <= 'f')
}

func isUpperHexDigit(b byte) bool {
	return isDecDigit(b) || (b >= 'A' && b <= 'F')
}

func isOctDigit(b byte) bool {
	return b >= '0' && b <= '7'
}

func isBinDigit(b byte) bool {
	return b == '0' || b == '1'
}

// digitInBase reports whether b is a valid digit for the given numeric base.
func digitInBase(b byte, base int) bool {
	switch base {
	case 2:
		return isBinDigit(b)
	case 8:
		return isOctDigit(b)
	case 16:
		return isHexDigit(b)
	default:
		return isDecDigit(b)
	}
}

// isIdentStartByte matches the default ASCII unquoted-key start set:
// letters and underscore.
func isIdentStartByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

func isIdentContinueByte(b byte) bool {
	return isIdentStartByte(b) || isDecDigit(b) || b == '-'
}

// isIdentStartRune is the Unicode equivalent, used when OnlyASCIIUnquoted
// is disabled.
func isIdentStartRune(r rune) bool {
	if r < utf8.RuneSelf {
		return isIdentStartByte(byte(r))
	}
	return unicode.IsLetter(r)
}

func isIdentContinueRune(r rune) bool {
	if r < utf8.RuneSelf {
		return isIdentContinueByte(byte(r))
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)
}

// isDisallowedLiteral reports whether r may never appear literally in a
// source document: C0/C1 controls other than tab and newlines, surrogates,
// noncharacters, bidi controls, and the BOM.
func isDisallowedLiteral(r rune) bool {
	switch {
	case r == '\t' || isNewlineRune(r):
		return false
	case r < 0x20, r == 0x7f, r >= 0x80 && r <= 0x9f:
		return true
	case r >= 0xd800 && r <= 0xdfff:
		return true
	case r == 0xfeff:
		return true
	case r >= 0xfdd0 && r <= 0xfdef:
		return true
	case r&0xfffe == 0xfffe:
		return true
	case r == 0x061c, r >= 0x200e && r <= 0x200f, r >= 0x202a && r <= 0x202e, r >= 0x2066 && r <= 0x2069:
		return true
	}
	return false
}

// isASCIISource reports whether r is permitted under OnlyASCIISource:
// tab, newline, and printable ASCII.
func isASCIISource(r rune) bool {
	return r == '\t' || r == '\n' || (r >= 0x20 && r <= 0x7e)
}

// DecodeSource converts raw input bytes to a string, auto-detecting a
// UTF-8, UTF-16, or UTF-32 BOM. Input without a BOM is taken as UTF-8.
func DecodeSource(b []byte) (string, error) {
	switch {
	case len(b) >= 4 && b[0] == 0x00 && b[1] == 0x00 && b[2] == 0xfe && b[3] == 0xff:
		return decodeUTF32(b[4:], binary.BigEndian)
	case len(b) >= 4 && b[0] == 0xff && b[1] == 0xfe && b[2] == 0x00 && b[3] == 0x00:
		return decodeUTF32(b[4:], binary.LittleEndian)
	case len(b) >= 3 && b[0] == 0xef && b[1] == 0xbb && b[2] == 0xbf:
		b = b[3:]
	case len(b) >= 2 && b[0] == 0xfe && b[1] == 0xff:
		return decodeUTF16(b[2:], binary.BigEndian)
	case len(b) >= 2 && b[0] == 0xff && b[1] == 0xfe:
		return decodeUTF16(b[2:], binary.LittleEndian)
	}
	if !utf8.Valid(b) {
		return "", &Error{Kind: ErrDisallowedCodePoint, Msg: "source is not valid UTF-8", Pos: Position{Line: 1, Column: 1}}
	}
	return string(b), nil
}

func decodeUTF16(b []byte, order binary.ByteOrder) (string, error) {
	if len(b)%2 != 0 {
		return "", &Error{Kind: ErrDisallowedCodePoint, Msg: "truncated UTF-16 input", Pos: Position{Line: 1, Column: 1}}
	}
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, order.Uint16(b[i:]))
	}
	return string(utf16.Decode(units)), nil
}

func decodeUTF32(b []byte, order binary.ByteOrder) (string, error) {
	if len(b)%4 != 0 {
		return "", &Error{Kind: ErrDisallowedCodePoint, Msg: "truncated UTF-32 input", Pos: Position{Line: 1, Column: 1}}
	}
	runes := make([]rune, 0, len(b)/4)
	for i := 0; i+3 < len(b); i += 4 {
		r := rune(order.Uint32(b[i:]))
		if r > unicode.MaxRune || (r >= 0xd800 && r <= 0xdfff) {
			return "", &Error{Kind: ErrDisallowedCodePoint, Msg: "invalid UTF-32 code unit", Pos: Position{Line: 1, Column: 1}}
		}
		runes = append(runes, r)
	}
	return string(runes), nil
}
