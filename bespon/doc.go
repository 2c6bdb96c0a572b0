// Package bespon implements BespON, a human-authored configuration
// language with three interchangeable surface syntaxes.
//
// BespON documents can be written:
//   - Inline: {key = value, other = [1, 2, 3]}
//   - Indentation-based: one "key = value" per line, lists with '*' bullets
//   - Section style: |=== keypath headers assigning into nested dicts
//
// All three load into the same data model: none, bool, int, float, str,
// bytes, dict, and list, plus complex and rational under ExtendedTypes.
//
// # Loading
//
//	v, err := bespon.Parse(src, nil)
//	port, err := v.Get("server").Get("port").AsInt()
//
// Parsing is a pure function of (source, options). Errors carry a kind, a
// position, and a one-line snippet; match them with errors.Is against a
// prototype *Error of the same kind.
//
// # Typing, labels, and aliases
//
// Values take explicit types through tags, written (type, key=value)>
// before the value. Tags also carry labels; $name aliases reference a
// labeled node elsewhere in the document. Forward references and cycles
// require the CircularReferences option. Dicts can seed themselves from a
// labeled dict with init=$other.
//
// # Round-trip editing
//
//	ast, err := bespon.ParseRoundtrip(src, nil)
//	err = ast.ReplaceVal([]interface{}{"server", "port"}, 8080)
//	out := ast.Dumps()
//
// Dumps reproduces the source byte for byte outside the edited spans.
// Replacements re-render in the original style: numeric base, digit
// grouping, and quote delimiters are preserved where the new value fits.
//
// # Serialization
//
// Serialize emits a fresh document in indentation style, switching to
// inline nesting at DumpOptions.InlineDepth. Shared and cyclic nodes are
// emitted once and referenced through labels when aliases are enabled.
package bespon
