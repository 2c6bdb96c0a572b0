package bespon

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// RoundtripAST retains the full token stream and node tree of a parsed
// document so that scalar values, keys, and comments can be edited while
// every untouched byte of the source survives exactly. Edits are recorded
// as span replacements; Dumps splices them back into the original text.
type RoundtripAST struct {
	src    string
	opts   *LoadOptions
	toks   []Token
	root   *astNode
	labels map[string]*astNode

	// EnforceTypes requires replacement values to stay within the class
	// of the original (string, number, or bool).
	EnforceTypes bool

	splices map[int]splice
	diags   []*Error
}

// splice is one pending byte-range replacement, keyed by start offset.
type splice struct {
	start, end int
	text       string
}

// ParseRoundtrip loads a document and retains its layout for editing.
func ParseRoundtrip(src string, opts *LoadOptions) (*RoundtripAST, error) {
	if opts == nil {
		opts = DefaultLoadOptions()
	}
	res, err := parseTree(src, opts)
	if err != nil {
		return nil, err
	}
	if res.root != nil {
		r, err := newResolver(src, opts, res.toks, res.labels)
		if err != nil {
			return nil, err
		}
		if _, err := r.resolve(res.root); err != nil {
			return nil, err
		}
	}
	return &RoundtripAST{
		src:          src,
		opts:         opts,
		toks:         res.toks,
		root:         res.root,
		labels:       res.labels,
		EnforceTypes: true,
		splices:      make(map[int]splice),
	}, nil
}

// ParseRoundtripBytes loads a document from raw bytes, auto-detecting a BOM.
func ParseRoundtripBytes(b []byte, opts *LoadOptions) (*RoundtripAST, error) {
	src, err := DecodeSource(b)
	if err != nil {
		return nil, err
	}
	return ParseRoundtrip(src, opts)
}

// Diagnostics returns non-fatal warnings accumulated during edits, such as
// style fallbacks where the original delimiters could not hold a new value.
func (a *RoundtripAST) Diagnostics() []*Error {
	return a.diags
}

// Dumps re-emits the document: the original source with every pending
// replacement spliced in. Untouched regions are byte-identical.
func (a *RoundtripAST) Dumps() string {
	if len(a.splices) == 0 {
		return a.src
	}
	edits := make([]splice, 0, len(a.splices))
	for _, s := range a.splices {
		edits = append(edits, s)
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var sb strings.Builder
	sb.Grow(len(a.src))
	prev := 0
	for _, e := range edits {
		sb.WriteString(a.src[prev:e.start])
		sb.WriteString(e.text)
		prev = e.end
	}
	sb.WriteString(a.src[prev:])
	return sb.String()
}

// ============================================================
// Path navigation
// ============================================================

// target is a resolved path endpoint: the node plus the dict entry or list
// slot that holds it.
type target struct {
	parent *astNode
	entry  *astEntry
	node   *astNode
}

// lookup walks dict-key and list-index hops from the root. Alias nodes are
// opaque: a path may end at one but not cross it.
func (a *RoundtripAST) lookup(path []interface{}) (*target, error) {
	if a.root == nil {
		return nil, a.pathErr(Position{Line: 1, Column: 1}, "empty document")
	}
	t := &target{node: a.root}
	for _, hop := range path {
		n := t.node
		if n.alias {
			return nil, a.pathErr(n.span.Start, "path crosses alias $%s", a.toks[n.tokIdx].Decoded)
		}
		switch n.kind {
		case KindDict:
			key, err := toValue(hop)
			if err != nil {
				return nil, err
			}
			e, err := findEntryByKey(n, key)
			if err != nil {
				return nil, err
			}
			if e == nil {
				ks, _ := keyString(key)
				return nil, a.pathErr(n.span.Start, "no key %q", ks[2:])
			}
			t.parent, t.entry, t.node = n, e, e.val
		case KindList:
			i, ok := hop.(int)
			if !ok {
				return nil, a.pathErr(n.span.Start, "list hop must be an int, got %T", hop)
			}
			if i < 0 || i >= len(n.items) {
				return nil, a.pathErr(n.span.Start, "index %d out of range", i)
			}
			t.parent, t.entry, t.node = n, nil, n.items[i]
		default:
			return nil, a.pathErr(n.span.Start, "cannot index into a %s", n.kind)
		}
	}
	return t, nil
}

func findEntryByKey(dict *astNode, key *Value) (*astEntry, error) {
	ks, ok := keyString(key)
	if !ok {
		return nil, fmt.Errorf("bespon: %s has no key identity", key.Kind())
	}
	for _, e := range dict.entries {
		if s, ok := keyString(e.key.scalar); ok && s == ks {
			return e, nil
		}
	}
	return nil, nil
}

func (a *RoundtripAST) pathErr(pos Position, format string, args ...interface{}) *Error {
	return newErr(ErrPathNotFound, a.src, pos, format, args...)
}

// ============================================================
// Edits
// ============================================================

// ReplaceVal replaces the scalar value at path with obj, re-rendering it in
// the original token's style. Surrounding whitespace, comments, and tags
// are untouched.
func (a *RoundtripAST) ReplaceVal(path []interface{}, obj interface{}) error {
	t, err := a.lookup(path)
	if err != nil {
		return err
	}
	n := t.node
	if n.alias {
		return newErr(ErrTypeMismatch, a.src, n.span.Start, "cannot replace an alias value")
	}
	if n.scalar == nil {
		return newErr(ErrTypeMismatch, a.src, n.span.Start, "cannot replace a %s collection", n.kind)
	}
	v, err := toValue(obj)
	if err != nil {
		return err
	}
	if a.EnforceTypes && typeClass(v.Kind()) != typeClass(n.scalar.Kind()) {
		return newErr(ErrTypeMismatch, a.src, n.span.Start, "replacement %s does not match %s", v.Kind(), n.scalar.Kind())
	}
	raw, err := a.render(a.toks[n.tokIdx], v, n.span.Start)
	if err != nil {
		return err
	}
	a.splices[n.span.Start.Offset] = splice{start: n.span.Start.Offset, end: n.span.End.Offset, text: raw}
	n.scalar = v
	n.kind = v.Kind()
	n.resolved = nil
	n.wrapSegs = nil
	return nil
}

// ReplaceKey renames the dict key at path, rewriting every keypath and
// section occurrence where the key is spelled. The new key must have a key
// identity and must not collide with a sibling.
func (a *RoundtripAST) ReplaceKey(path []interface{}, obj interface{}) error {
	t, err := a.lookup(path)
	if err != nil {
		return err
	}
	if t.entry == nil {
		return a.pathErr(t.node.span.Start, "path does not name a dict entry")
	}
	key, err := toValue(obj)
	if err != nil {
		return err
	}
	keyTok := a.toks[t.entry.key.tokIdx]
	if err := validKey(key, a.src, keyTok.Span.Start); err != nil {
		return err
	}
	if a.EnforceTypes && typeClass(key.Kind()) != typeClass(t.entry.key.scalar.Kind()) {
		return newErr(ErrTypeMismatch, a.src, keyTok.Span.Start, "replacement %s does not match %s key", key.Kind(), t.entry.key.scalar.Kind())
	}
	for _, e := range t.parent.entries {
		if e == t.entry {
			continue
		}
		if s, ok := keyString(e.key.scalar); ok {
			if ks, _ := keyString(key); s == ks {
				return newErr(ErrKeyCollision, a.src, keyTok.Span.Start, "key already exists in this dict")
			}
		}
	}
	raw, err := a.render(keyTok, key, keyTok.Span.Start)
	if err != nil {
		return err
	}
	if key.Kind() == KindStr && strings.Contains(key.strVal, " ") {
		return newErr(ErrTypeMismatch, a.src, keyTok.Span.Start, "key %q contains a space", key.strVal)
	}
	for _, occ := range t.entry.occurrences {
		tok := a.toks[occ]
		a.splices[tok.Span.Start.Offset] = splice{start: tok.Span.Start.Offset, end: tok.Span.End.Offset, text: raw}
	}
	t.entry.key.scalar = key
	t.entry.key.kind = key.Kind()
	return nil
}

// ============================================================
// Cursors
// ============================================================

// Cursor exposes one node of the document with its key and the comment
// slots bound to it.
type Cursor struct {
	ast   *RoundtripAST
	entry *astEntry // nil for list items and the root
	node  *astNode
}

// At returns a cursor for the node at path.
func (a *RoundtripAST) At(path ...interface{}) (*Cursor, error) {
	t, err := a.lookup(path)
	if err != nil {
		return nil, err
	}
	return &Cursor{ast: a, entry: t.entry, node: t.node}, nil
}

// Key returns the entry key, or nil for list items and the root.
func (c *Cursor) Key() *Value {
	if c.entry == nil {
		return nil
	}
	return c.entry.key.scalar
}

// Value returns the node's value: the resolved scalar or collection, or
// the replacement after ReplaceVal. It returns nil for an alias node.
func (c *Cursor) Value() *Value {
	if c.node.resolved != nil {
		return c.node.resolved
	}
	return c.node.scalar
}

// KeyDocComment returns the doc comment bound before the key.
func (c *Cursor) KeyDocComment() (string, bool) {
	if c.entry == nil {
		return "", false
	}
	return c.ast.commentText(c.entry.keyDocIdx)
}

// ValueDocComment returns the doc comment bound before the value.
func (c *Cursor) ValueDocComment() (string, bool) {
	return c.ast.commentText(c.node.docIdx)
}

// KeyTrailingComment returns the line comment after '='.
func (c *Cursor) KeyTrailingComment() (string, bool) {
	if c.entry == nil {
		return "", false
	}
	return c.ast.commentText(c.entry.keyTrailIdx)
}

// ValueTrailingComment returns the line comment after the value.
func (c *Cursor) ValueTrailingComment() (string, bool) {
	return c.ast.commentText(c.node.trailIdx)
}

// ValueStartTrailingComment returns the comment after an inline opener.
func (c *Cursor) ValueStartTrailingComment() (string, bool) {
	return c.ast.commentText(c.node.startTrailIdx)
}

// ValueEndTrailingComment returns the comment after an inline closer.
func (c *Cursor) ValueEndTrailingComment() (string, bool) {
	return c.ast.commentText(c.node.endTrailIdx)
}

// SetKeyDocComment rewrites the key's doc comment. The slot must already
// hold a comment; new comments are not inserted.
func (c *Cursor) SetKeyDocComment(text string) error {
	if c.entry == nil {
		return c.missingSlot("key doc comment")
	}
	return c.ast.setComment(c.entry.keyDocIdx, text)
}

// SetValueDocComment rewrites the value's doc comment.
func (c *Cursor) SetValueDocComment(text string) error {
	return c.ast.setComment(c.node.docIdx, text)
}

// SetKeyTrailingComment rewrites the comment after '='.
func (c *Cursor) SetKeyTrailingComment(text string) error {
	if c.entry == nil {
		return c.missingSlot("key trailing comment")
	}
	return c.ast.setComment(c.entry.keyTrailIdx, text)
}

// SetValueTrailingComment rewrites the comment after the value.
func (c *Cursor) SetValueTrailingComment(text string) error {
	return c.ast.setComment(c.node.trailIdx, text)
}

// SetValueStartTrailingComment rewrites the comment after an inline opener.
func (c *Cursor) SetValueStartTrailingComment(text string) error {
	return c.ast.setComment(c.node.startTrailIdx, text)
}

// SetValueEndTrailingComment rewrites the comment after an inline closer.
func (c *Cursor) SetValueEndTrailingComment(text string) error {
	return c.ast.setComment(c.node.endTrailIdx, text)
}

func (c *Cursor) missingSlot(name string) error {
	return newErr(ErrPathNotFound, c.ast.src, c.node.span.Start, "no %s at this node", name)
}

func (a *RoundtripAST) commentText(idx int) (string, bool) {
	if idx < 0 {
		return "", false
	}
	return a.toks[idx].Decoded, true
}

func (a *RoundtripAST) setComment(idx int, text string) error {
	if idx < 0 {
		return newErr(ErrPathNotFound, a.src, Position{Line: 1, Column: 1}, "no comment at this slot")
	}
	tok := a.toks[idx]
	var raw string
	switch {
	case tok.Kind == TokenComment:
		if strings.ContainsRune(text, '\n') {
			return newErr(ErrTypeMismatch, a.src, tok.Span.Start, "line comment cannot span lines")
		}
		raw = "# " + text
	case tok.Block:
		delims := strings.Repeat("#", tok.DelimLen)
		indent := closerIndent(tok.Raw)
		var sb strings.Builder
		sb.WriteString(delims)
		sb.WriteByte('\n')
		for _, line := range strings.Split(text, "\n") {
			if line != "" {
				sb.WriteString(indent)
				sb.WriteString(line)
			}
			sb.WriteByte('\n')
		}
		sb.WriteString(indent)
		sb.WriteString(delims)
		raw = sb.String()
	default:
		n := tok.DelimLen
		if run := maxRun(text, '#'); run >= n {
			n = run + 1
		}
		if n < 3 {
			n = 3
		}
		if strings.ContainsRune(text, '\n') {
			return newErr(ErrTypeMismatch, a.src, tok.Span.Start, "inline doc comment cannot span lines")
		}
		delims := strings.Repeat("#", n)
		raw = delims + " " + strings.TrimSpace(text) + " " + delims
	}
	a.splices[tok.Span.Start.Offset] = splice{start: tok.Span.Start.Offset, end: tok.Span.End.Offset, text: raw}
	return nil
}

// ============================================================
// Re-rendering
// ============================================================

// typeClass groups kinds for replacement compatibility: all numeric kinds
// form one class.
func typeClass(k Kind) int {
	switch k {
	case KindInt, KindFloat, KindComplex, KindRational:
		return 1
	case KindStr, KindBytes:
		return 2
	case KindBool:
		return 3
	case KindNone:
		return 4
	}
	return 0
}

// toValue converts a Go value or *Value into a scalar Value.
func toValue(obj interface{}) (*Value, error) {
	switch x := obj.(type) {
	case *Value:
		return x, nil
	case nil:
		return None(), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float64:
		return Float(x), nil
	case string:
		return Str(x), nil
	case []byte:
		return Bytes(x), nil
	case complex128:
		return Complex(x), nil
	case *big.Rat:
		return Rational(x), nil
	}
	return nil, fmt.Errorf("bespon: cannot convert %T to a value", obj)
}

// render produces the raw text for v in the style of the original token.
func (a *RoundtripAST) render(orig Token, v *Value, pos Position) (string, error) {
	switch v.Kind() {
	case KindNone:
		return "none", nil
	case KindBool:
		if v.boolVal {
			return "true", nil
		}
		return "false", nil
	case KindInt:
		return renderInt(v.intVal, orig), nil
	case KindFloat:
		return renderFloat(v.floatVal, orig), nil
	case KindComplex:
		return renderComplex(v.complexVal), nil
	case KindRational:
		return v.ratVal.Num().String() + "/" + v.ratVal.Denom().String(), nil
	case KindStr:
		return a.renderString(orig, v.strVal, pos)
	}
	return "", newErr(ErrTypeMismatch, a.src, pos, "cannot render a %s scalar in place", v.Kind())
}

// renderInt keeps the original base and reapplies '_' grouping at the
// original stride.
func renderInt(n int64, orig Token) string {
	neg := n < 0
	mag := uint64(n)
	if neg {
		mag = uint64(-n)
	}
	var prefix, digits string
	base := orig.NumBase
	if orig.NumKind != NumInt {
		base = 10
	}
	switch base {
	case 16:
		prefix, digits = "0x", strconv.FormatUint(mag, 16)
	case 8:
		prefix, digits = "0o", strconv.FormatUint(mag, 8)
	case 2:
		prefix, digits = "0b", strconv.FormatUint(mag, 2)
	default:
		digits = strconv.FormatUint(mag, 10)
	}
	if stride := groupingStride(orig.Raw); stride > 0 {
		digits = groupDigits(digits, stride)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return sign + prefix + digits
}

func renderFloat(f float64, orig Token) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if orig.NumKind == NumFloat && orig.NumBase == 16 {
		return strconv.FormatFloat(f, 'x', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func renderComplex(c complex128) string {
	re, im := real(c), imag(c)
	imStr := strconv.FormatFloat(im, 'g', -1, 64)
	if re == 0 {
		return imStr + "i"
	}
	reStr := strconv.FormatFloat(re, 'g', -1, 64)
	if im >= 0 && !strings.HasPrefix(imStr, "+") {
		imStr = "+" + imStr
	}
	return reStr + imStr + "i"
}

// groupingStride measures the digit-group width of the original literal,
// or 0 when it carried no '_'.
func groupingStride(raw string) int {
	last := strings.LastIndexByte(raw, '_')
	if last < 0 {
		return 0
	}
	n := 0
	for i := last + 1; i < len(raw) && isHexDigit(raw[i]); i++ {
		n++
	}
	if n == 0 {
		return 0
	}
	return n
}

func groupDigits(digits string, stride int) string {
	if len(digits) <= stride {
		return digits
	}
	var sb strings.Builder
	head := len(digits) % stride
	if head == 0 {
		head = stride
	}
	sb.WriteString(digits[:head])
	for i := head; i < len(digits); i += stride {
		sb.WriteByte('_')
		sb.WriteString(digits[i : i+stride])
	}
	return sb.String()
}

// renderString keeps the original quoting style where the new content
// fits: same delimiter and run length, minimally extended for literal
// styles, with a fall back to an escaped style and a StyleFallback
// diagnostic when the original style cannot hold the content.
func (a *RoundtripAST) renderString(orig Token, s string, pos Position) (string, error) {
	esc := Escaper{OnlyASCII: a.opts.OnlyASCIISource}
	switch {
	case orig.Kind == TokenWord:
		if validUnquotedValue(s, a.opts.OnlyASCIIUnquoted) {
			return s, nil
		}
		a.styleFallback(pos, "unquoted value re-rendered as a quoted string")
		return `"` + esc.Escape(s, '"', true) + `"`, nil
	case orig.Kind == TokenString && orig.Block:
		return a.renderBlockString(orig, s), nil
	case orig.Kind == TokenString && orig.Delim == '`':
		if !strings.ContainsRune(s, '\n') && !hasDisallowed(s) {
			n := orig.DelimLen
			if run := maxRun(s, '`'); run >= n {
				n = run + 1
			}
			if n == 2 {
				n = 3
			}
			d := strings.Repeat("`", n)
			body := s
			// A delimiter-adjacent backtick or a leading/trailing space next
			// to a multi-run delimiter changes meaning; pad with one space.
			if strings.HasPrefix(body, "`") || strings.HasSuffix(body, "`") {
				body = " " + body + " "
			}
			return d + body + d, nil
		}
		a.styleFallback(pos, "literal string re-rendered in escaped style")
		return `"` + esc.Escape(s, '"', true) + `"`, nil
	case orig.Kind == TokenString:
		q := orig.Delim
		if q != '\'' && q != '"' {
			q = '"'
		}
		return string(q) + esc.Escape(s, q, true) + string(q), nil
	}
	return "", newErr(ErrTypeMismatch, a.src, pos, "cannot re-render %s as a string", orig.Kind)
}

// renderBlockString re-renders a multiline block, keeping the delimiter
// run, the closing-line indentation, and the newline-suffix convention.
func (a *RoundtripAST) renderBlockString(orig Token, s string) string {
	n := orig.DelimLen
	if run := maxRun(s, orig.Delim); run >= n {
		n = run + 1
		if n < 3 {
			n = 3
		}
	}
	delims := strings.Repeat(string(orig.Delim), n)
	indent := closerIndent(orig.Raw)
	body := s
	suffix := orig.BlockSuffix
	if suffix != "//" {
		body = strings.TrimSuffix(body, "\n")
	}
	var sb strings.Builder
	sb.WriteString(delims)
	sb.WriteByte('\n')
	for _, line := range strings.Split(body, "\n") {
		if line != "" {
			sb.WriteString(indent)
			sb.WriteString(line)
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(indent)
	sb.WriteString(delims)
	sb.WriteString(suffix)
	return sb.String()
}

// closerIndent extracts the leading whitespace of the final line of a
// block token's raw text.
func closerIndent(raw string) string {
	last := strings.LastIndexByte(raw, '\n')
	if last < 0 {
		return ""
	}
	line := raw[last+1:]
	i := 0
	for i < len(line) && isIndentByte(line[i]) {
		i++
	}
	return line[:i]
}

func maxRun(s string, b byte) int {
	best, run := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			run++
			if run > best {
				best = run
			}
		} else {
			run = 0
		}
	}
	return best
}

func hasDisallowed(s string) bool {
	for _, r := range s {
		if isDisallowedLiteral(r) {
			return true
		}
	}
	return false
}

// validUnquotedValue reports whether s can stand as an unquoted string:
// identifier-shaped, not a reserved word, within the configured repertoire.
func validUnquotedValue(s string, onlyASCII bool) bool {
	if s == "" {
		return false
	}
	switch strings.ToLower(s) {
	case "none", "true", "false", "inf", "nan":
		return false
	}
	for i, r := range s {
		if onlyASCII && r >= 0x80 {
			return false
		}
		if i == 0 {
			if !isIdentStartRune(r) {
				return false
			}
			continue
		}
		if !isIdentContinueRune(r) {
			return false
		}
	}
	return true
}

func (a *RoundtripAST) styleFallback(pos Position, msg string) {
	a.diags = append(a.diags, newErr(ErrStyleFallback, a.src, pos, "%s", msg))
}
