package bespon

import "strings"

// astNode is a raw parse node. Scalars carry their token index and the
// converted value; collections carry entries or items. The resolver turns
// the tree into the final value graph; the round-trip AST retains it.
type astNode struct {
	kind   Kind
	alias  bool
	tokIdx int
	scalar *Value

	entries []*astEntry
	items   []*astNode

	tag *tagSpec

	docIdx        int // value doc comment
	trailIdx      int // trailing comment after the value
	startTrailIdx int // comment after an inline opener
	endTrailIdx   int // comment after an inline closer

	span           Span
	inline         bool
	keypathCreated bool
	wrapSegs       []int // word tokens joined into a wrapped unquoted value

	resolved  *Value
	resolving bool
}

// astEntry is one dict slot. occurrences lists every token index where the
// key is spelled, including keypath and section re-entries.
type astEntry struct {
	key *astNode
	val *astNode

	keyDocIdx   int
	keyTrailIdx int
	occurrences []int
}

func newASTNode(kind Kind) *astNode {
	return &astNode{kind: kind, tokIdx: -1, docIdx: -1, trailIdx: -1, startTrailIdx: -1, endTrailIdx: -1}
}

// pathSeg is a single keypath segment with the token spelling it.
type pathSeg struct {
	node   *astNode
	tokIdx int
}

// parser builds the node tree from a token stream. It is line-driven in
// indentation style and delimiter-driven inside inline collections.
type parser struct {
	src  string
	opts *LoadOptions
	ts   *TokenStream
	toks []Token

	labels map[string]*astNode

	depth      int
	curIndent  string
	margin     string
	pendingDoc int
	pendingTag *tagSpec // tag awaiting its collection node, visible to insertPath
}

type parseResult struct {
	toks   []Token
	root   *astNode
	labels map[string]*astNode
}

// parseTree lexes and parses src. A nil root means an empty document.
func parseTree(src string, opts *LoadOptions) (*parseResult, error) {
	toks, err := Lex(src, opts)
	if err != nil {
		return nil, err
	}
	p := &parser{
		src:        src,
		opts:       opts,
		ts:         NewTokenStream(toks),
		toks:       toks,
		labels:     make(map[string]*astNode),
		pendingDoc: -1,
	}
	root, err := p.parseDocument()
	if err != nil {
		return nil, err
	}
	return &parseResult{toks: toks, root: root, labels: p.labels}, nil
}

// Parse loads a BespON document into a value graph.
func Parse(src string, opts *LoadOptions) (*Value, error) {
	if opts == nil {
		opts = DefaultLoadOptions()
	}
	res, err := parseTree(src, opts)
	if err != nil {
		return nil, err
	}
	if res.root == nil {
		if opts.EmptyDefault != nil {
			return opts.EmptyDefault, nil
		}
		return nil, newErr(ErrUnexpected, src, Position{Line: 1, Column: 1}, "empty document")
	}
	r, err := newResolver(src, opts, res.toks, res.labels)
	if err != nil {
		return nil, err
	}
	return r.resolve(res.root)
}

// ParseBytes loads a document from raw bytes, auto-detecting a BOM.
func ParseBytes(b []byte, opts *LoadOptions) (*Value, error) {
	src, err := DecodeSource(b)
	if err != nil {
		return nil, err
	}
	return Parse(src, opts)
}

// ============================================================
// Cursor helpers
// ============================================================

func (p *parser) cur() Token {
	return p.ts.Peek()
}

func (p *parser) curIdx() int {
	return p.ts.Position()
}

func (p *parser) at(kind TokenKind) bool {
	return p.ts.Peek().Kind == kind
}

func (p *parser) advance() Token {
	return p.ts.Advance()
}

func (p *parser) atEOF() bool {
	return p.ts.AtEnd()
}

func (p *parser) errTok(kind ErrKind, tok Token, format string, args ...interface{}) error {
	return newErr(kind, p.src, tok.Span.Start, format, args...)
}

// skipTrivia consumes newlines, indents, line comments, and full-line doc
// comments, leaving the cursor at the next content token. Doc comments are
// held pending until a key or value binds them.
func (p *parser) skipTrivia() error {
	for {
		switch p.cur().Kind {
		case TokenNewline:
			p.advance()
		case TokenIndent:
			p.curIndent = p.cur().Raw
			p.advance()
		case TokenComment:
			p.advance()
		case TokenDocComment:
			if p.pendingDoc >= 0 {
				return p.errTok(ErrUnexpected, p.cur(), "doc comment follows an unbound doc comment")
			}
			p.pendingDoc = p.curIdx()
			p.advance()
		default:
			return nil
		}
	}
}

func (p *parser) takePendingDoc() int {
	idx := p.pendingDoc
	p.pendingDoc = -1
	return idx
}

// expectLineEnd verifies nothing but a trailing comment remains on the line.
func (p *parser) expectLineEnd() error {
	if p.at(TokenComment) {
		p.advance()
	}
	if !p.atEOF() && !p.at(TokenNewline) {
		return p.errTok(ErrUnexpected, p.cur(), "unexpected %s after value", p.cur().Kind)
	}
	return nil
}

func indentDeeper(child, parent string) bool {
	return strings.HasPrefix(child, parent) && len(child) > len(parent)
}

// isScalarKind reports whether a token can be a dict key or scalar value.
func isScalarKind(k TokenKind) bool {
	switch k {
	case TokenWord, TokenString, TokenNumber, TokenTrue, TokenFalse, TokenNone:
		return true
	}
	return false
}

// looksLikeKeyLine reports whether the tokens ahead form `key = ...` or a
// dotted keypath assignment before the next line break.
func (p *parser) looksLikeKeyLine() bool {
	if !isScalarKind(p.cur().Kind) {
		return false
	}
	i := 1
	for p.ts.PeekN(i).Kind == TokenDot {
		if !isScalarKind(p.ts.PeekN(i + 1).Kind) {
			return false
		}
		i += 2
	}
	return p.ts.PeekN(i).Kind == TokenEquals
}

// ============================================================
// Document
// ============================================================

func (p *parser) parseDocument() (*astNode, error) {
	if err := p.skipTrivia(); err != nil {
		return nil, err
	}
	if p.atEOF() {
		return nil, nil
	}
	p.margin = p.curIndent
	switch {
	case p.at(TokenSectionOpen) || p.at(TokenSectionClose) || p.looksLikeKeyLine():
		return p.parseRootDict()
	case p.at(TokenListItem):
		root, err := p.parseIndentList(p.margin)
		if err != nil {
			return nil, err
		}
		return root, p.expectDocEnd()
	default:
		root, err := p.parseValue(p.margin, false)
		if err != nil {
			return nil, err
		}
		if p.at(TokenComment) {
			root.trailIdx = p.curIdx()
			p.advance()
		}
		return root, p.expectDocEnd()
	}
}

func (p *parser) expectDocEnd() error {
	if err := p.skipTrivia(); err != nil {
		return err
	}
	if !p.atEOF() {
		return p.errTok(ErrUnexpected, p.cur(), "unexpected %s after document content", p.cur().Kind)
	}
	return nil
}

// parseRootDict parses the root dict, handling section headers that set a
// key prefix for subsequent entries.
func (p *parser) parseRootDict() (*astNode, error) {
	root := newASTNode(KindDict)
	root.span = p.cur().Span
	var prefix []pathSeg
	for {
		if err := p.skipTrivia(); err != nil {
			return nil, err
		}
		if p.atEOF() {
			break
		}
		switch {
		case p.at(TokenSectionOpen):
			segs, err := p.parseSectionHeader()
			if err != nil {
				return nil, err
			}
			prefix = segs
		case p.at(TokenSectionClose):
			p.advance()
			prefix = nil
			if err := p.expectLineEnd(); err != nil {
				return nil, err
			}
		default:
			if p.curIndent != p.margin {
				return nil, p.errTok(ErrIndent, p.cur(), "top-level entry is indented")
			}
			if err := p.parseEntryInto(root, prefix); err != nil {
				return nil, err
			}
		}
	}
	root.span.End = p.cur().Span.End
	return root, nil
}

// parseSectionHeader consumes `|=== keypath` and returns the prefix path.
func (p *parser) parseSectionHeader() ([]pathSeg, error) {
	open := p.advance()
	if p.atEOF() || p.at(TokenNewline) {
		return nil, p.errTok(ErrBadSection, open, "section header requires a keypath")
	}
	segs, err := p.parseKeypath()
	if err != nil {
		return nil, err
	}
	if err := p.expectLineEnd(); err != nil {
		return nil, err
	}
	return segs, nil
}

// ============================================================
// Dict entries and keypaths
// ============================================================

// parseEntryInto parses one `key = value` line, inserting the value under
// prefix plus the line's own keypath.
func (p *parser) parseEntryInto(dict *astNode, prefix []pathSeg) error {
	keyDoc := p.takePendingDoc()
	if p.at(TokenDocComment) {
		if keyDoc >= 0 {
			return p.errTok(ErrUnexpected, p.cur(), "key already has a doc comment")
		}
		keyDoc = p.curIdx()
		p.advance()
	}
	lineIndent := p.curIndent
	segs, err := p.parseKeypath()
	if err != nil {
		return err
	}
	if !p.at(TokenEquals) {
		return p.errTok(ErrUnexpected, p.cur(), "expected '=' after key")
	}
	p.advance()
	val, keyTrail, err := p.parseEntryValue(lineIndent)
	if err != nil {
		return err
	}
	path := make([]pathSeg, 0, len(prefix)+len(segs))
	path = append(path, prefix...)
	path = append(path, segs...)
	return p.insertPath(dict, path, val, keyDoc, keyTrail)
}

// parseKeypath parses dotted scalar key segments.
func (p *parser) parseKeypath() ([]pathSeg, error) {
	var segs []pathSeg
	for {
		if !isScalarKind(p.cur().Kind) {
			return nil, p.errTok(ErrUnexpected, p.cur(), "expected key, got %s", p.cur().Kind)
		}
		idx := p.curIdx()
		keyNode, err := p.scalarFromToken(p.advance(), idx, nil)
		if err != nil {
			return nil, err
		}
		if keyNode.scalar.Kind() == KindStr && strings.Contains(keyNode.scalar.strVal, " ") {
			return nil, p.errTok(ErrUnexpected, p.toks[idx], "key %q contains a space", keyNode.scalar.strVal)
		}
		segs = append(segs, pathSeg{node: keyNode, tokIdx: idx})
		if !p.at(TokenDot) {
			return segs, nil
		}
		p.advance()
	}
}

// parseEntryValue parses the value after '='. A bare line end defers the
// value to the following, more-indented lines.
func (p *parser) parseEntryValue(lineIndent string) (*astNode, int, error) {
	keyTrail := -1
	if p.at(TokenComment) {
		keyTrail = p.curIdx()
		p.advance()
	}
	if p.at(TokenNewline) || p.atEOF() {
		if err := p.skipTrivia(); err != nil {
			return nil, -1, err
		}
		if p.atEOF() || !indentDeeper(p.curIndent, lineIndent) {
			return nil, -1, p.errTok(ErrUnexpected, p.cur(), "missing value after '='")
		}
		val, err := p.parseBlockAt(p.curIndent)
		return val, keyTrail, err
	}
	val, err := p.parseValue(lineIndent, false)
	if err != nil {
		return nil, -1, err
	}
	if p.at(TokenComment) && val.trailIdx < 0 && val.endTrailIdx < 0 {
		val.trailIdx = p.curIdx()
		p.advance()
	}
	if !p.atEOF() && !p.at(TokenNewline) {
		return nil, -1, p.errTok(ErrUnexpected, p.cur(), "unexpected %s after value", p.cur().Kind)
	}
	return val, keyTrail, nil
}

// parseBlockAt parses a value whose first token starts a deeper line:
// an indent list, an indent dict, or a scalar on its own line.
func (p *parser) parseBlockAt(indent string) (*astNode, error) {
	switch {
	case p.at(TokenListItem):
		return p.parseIndentList(indent)
	case p.looksLikeKeyLine():
		return p.parseIndentDict(indent)
	default:
		v, err := p.parseValue(indent, false)
		if err != nil {
			return nil, err
		}
		if p.at(TokenComment) {
			v.trailIdx = p.curIdx()
			p.advance()
		}
		if !p.atEOF() && !p.at(TokenNewline) {
			return nil, p.errTok(ErrUnexpected, p.cur(), "unexpected %s after value", p.cur().Kind)
		}
		return v, nil
	}
}

// parseIndentDict parses consecutive `key = value` lines at one indent.
func (p *parser) parseIndentDict(indent string) (*astNode, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > p.opts.MaxNestingDepth {
		return nil, p.errTok(ErrDepthExceeded, p.cur(), "nesting exceeds max_nesting_depth %d", p.opts.MaxNestingDepth)
	}
	n := newASTNode(KindDict)
	n.tag = p.pendingTag
	p.pendingTag = nil
	n.span = p.cur().Span
	for {
		if err := p.parseEntryInto(n, nil); err != nil {
			return nil, err
		}
		n.span.End = p.toks[p.curIdx()].Span.Start
		if err := p.skipTrivia(); err != nil {
			return nil, err
		}
		if p.atEOF() || len(p.curIndent) < len(indent) || p.curIndent == p.margin && indent != p.margin {
			return n, nil
		}
		if p.curIndent != indent {
			if indentDeeper(p.curIndent, indent) {
				return nil, p.errTok(ErrIndent, p.cur(), "unexpected indent")
			}
			return n, nil
		}
		if p.at(TokenSectionOpen) || p.at(TokenSectionClose) {
			return nil, p.errTok(ErrBadSection, p.cur(), "section markers are only valid at the document root")
		}
		if !p.looksLikeKeyLine() {
			return nil, p.errTok(ErrUnexpected, p.cur(), "expected key, got %s", p.cur().Kind)
		}
	}
}

// parseIndentList parses consecutive `* value` lines at one indent. The
// item marker counts as indentation for the item's own content.
func (p *parser) parseIndentList(indent string) (*astNode, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > p.opts.MaxNestingDepth {
		return nil, p.errTok(ErrDepthExceeded, p.cur(), "nesting exceeds max_nesting_depth %d", p.opts.MaxNestingDepth)
	}
	n := newASTNode(KindList)
	n.tag = p.pendingTag
	p.pendingTag = nil
	n.span = p.cur().Span
	for {
		marker := p.advance() // '*'
		if p.at(TokenNewline) || p.atEOF() {
			return nil, p.errTok(ErrEmptyCollectionItem, marker, "list item has no value")
		}
		itemIndent := indent + strings.Repeat(" ", p.cur().Span.Start.Column-marker.Span.Start.Column)
		item, err := p.parseItemValue(itemIndent)
		if err != nil {
			return nil, err
		}
		n.items = append(n.items, item)
		n.span.End = p.toks[p.curIdx()].Span.Start
		if err := p.skipTrivia(); err != nil {
			return nil, err
		}
		if p.atEOF() || p.curIndent != indent || !p.at(TokenListItem) {
			if !p.atEOF() && p.curIndent == indent && !p.at(TokenListItem) && indent != p.margin {
				return nil, p.errTok(ErrIndent, p.cur(), "list item expected at this indent")
			}
			return n, nil
		}
	}
}

// parseItemValue parses the value of one list item, which may itself be a
// nested list, a dict whose first entry shares the marker line, or a value.
func (p *parser) parseItemValue(itemIndent string) (*astNode, error) {
	switch {
	case p.at(TokenListItem):
		return p.parseIndentList(itemIndent)
	case p.looksLikeKeyLine():
		return p.parseIndentDict(itemIndent)
	default:
		v, err := p.parseValue(itemIndent, false)
		if err != nil {
			return nil, err
		}
		if p.at(TokenComment) {
			v.trailIdx = p.curIdx()
			p.advance()
		}
		if !p.atEOF() && !p.at(TokenNewline) {
			return nil, p.errTok(ErrUnexpected, p.cur(), "unexpected %s after list item", p.cur().Kind)
		}
		return v, nil
	}
}

// insertPath walks or creates the keypath under dict and stores val at the
// terminal segment. Intermediate dicts must be keypath-created or carry an
// explicit merge permission.
func (p *parser) insertPath(dict *astNode, path []pathSeg, val *astNode, keyDoc, keyTrail int) error {
	cur := dict
	for i, seg := range path[:len(path)-1] {
		e, err := p.findEntry(cur, seg)
		if err != nil {
			return err
		}
		if e == nil {
			child := newASTNode(KindDict)
			child.keypathCreated = true
			child.span = p.toks[seg.tokIdx].Span
			e = &astEntry{key: seg.node, val: child, keyDocIdx: -1, keyTrailIdx: -1}
			cur.entries = append(cur.entries, e)
		} else {
			if e.val.kind != KindDict || e.val.alias {
				return p.errTok(ErrDuplicateKey, p.toks[seg.tokIdx], "keypath segment %q re-assigns a non-dict value", p.toks[seg.tokIdx].Raw)
			}
			if !mergeableDict(e.val) {
				return p.errTok(ErrDuplicateKey, p.toks[path[i].tokIdx], "dict %q does not permit keypath merging", p.toks[seg.tokIdx].Raw)
			}
		}
		e.occurrences = append(e.occurrences, seg.tokIdx)
		cur = e.val
	}
	last := path[len(path)-1]
	e, err := p.findEntry(cur, last)
	if err != nil {
		return err
	}
	if e != nil {
		if cur.tag == nil || !cur.tag.overwrite {
			return p.errTok(ErrDuplicateKey, p.toks[last.tokIdx], "duplicate key %q", p.toks[last.tokIdx].Raw)
		}
		e.val = val
		e.occurrences = append(e.occurrences, last.tokIdx)
		if keyDoc >= 0 {
			e.keyDocIdx = keyDoc
		}
		if keyTrail >= 0 {
			e.keyTrailIdx = keyTrail
		}
		return nil
	}
	cur.entries = append(cur.entries, &astEntry{
		key:         last.node,
		val:         val,
		keyDocIdx:   keyDoc,
		keyTrailIdx: keyTrail,
		occurrences: []int{last.tokIdx},
	})
	return nil
}

// mergeableDict reports whether a later keypath may extend this dict.
func mergeableDict(n *astNode) bool {
	if n.keypathCreated {
		return true
	}
	if n.tag != nil && (n.tag.overwrite || n.tag.inherit) {
		return true
	}
	return false
}

// findEntry locates a dict entry by canonical key identity.
func (p *parser) findEntry(dict *astNode, seg pathSeg) (*astEntry, error) {
	ks, ok := keyString(seg.node.scalar)
	if !ok {
		return nil, validKey(seg.node.scalar, p.src, p.toks[seg.tokIdx].Span.Start)
	}
	for _, e := range dict.entries {
		if s, ok := keyString(e.key.scalar); ok && s == ks {
			return e, nil
		}
	}
	return nil, nil
}

// ============================================================
// Values
// ============================================================

// parseValue parses a value at the cursor: an optional tag followed by a
// scalar, alias, inline collection, or (after a line break) a block form.
func (p *parser) parseValue(lineIndent string, inline bool) (*astNode, error) {
	docIdx := p.takePendingDoc()
	if p.at(TokenDocComment) {
		if docIdx >= 0 {
			return nil, p.errTok(ErrUnexpected, p.cur(), "value already has a doc comment")
		}
		docIdx = p.curIdx()
		p.advance()
	}
	var tag *tagSpec
	if p.at(TokenTagOpen) {
		var err error
		tag, err = p.parseTag()
		if err != nil {
			return nil, err
		}
		if p.at(TokenTagOpen) {
			return nil, p.errTok(ErrTagMismatch, p.cur(), "multiple tags on one value")
		}
		if !inline && (p.at(TokenNewline) || p.at(TokenComment)) {
			if p.at(TokenComment) {
				p.advance()
			}
			if err := p.skipTrivia(); err != nil {
				return nil, err
			}
			if p.atEOF() || !indentDeeper(p.curIndent, lineIndent) {
				return nil, p.errTok(ErrTagMismatch, p.cur(), "tag is not followed by a value")
			}
			p.pendingTag = tag
			n, err := p.parseBlockAt(p.curIndent)
			p.pendingTag = nil
			if err != nil {
				return nil, err
			}
			return p.finishValue(n, tag, docIdx)
		}
	}
	var n *astNode
	var err error
	switch {
	case p.at(TokenLBrace):
		p.pendingTag = tag
		n, err = p.parseInlineDict()
		p.pendingTag = nil
	case p.at(TokenLBracket):
		n, err = p.parseInlineList()
	case p.at(TokenAlias):
		idx := p.curIdx()
		tok := p.advance()
		n = newASTNode(KindNone)
		n.alias = true
		n.tokIdx = idx
		n.span = tok.Span
	case isScalarKind(p.cur().Kind):
		idx := p.curIdx()
		tok := p.advance()
		n, err = p.scalarFromToken(tok, idx, tag)
		if err == nil && tok.Kind == TokenWord && !inline {
			p.joinWrappedWord(n, idx, lineIndent)
		}
	default:
		return nil, p.errTok(ErrUnexpected, p.cur(), "expected value, got %s", p.cur().Kind)
	}
	if err != nil {
		return nil, err
	}
	return p.finishValue(n, tag, docIdx)
}

// finishValue attaches tag and doc comment and registers any label.
func (p *parser) finishValue(n *astNode, tag *tagSpec, docIdx int) (*astNode, error) {
	if tag != nil {
		n.tag = tag
		if tag.label != "" {
			if _, exists := p.labels[tag.label]; exists {
				return nil, newErr(ErrLabelRedefinition, p.src, tag.pos, "label %q is already defined", tag.label)
			}
			p.labels[tag.label] = n
		}
	}
	if docIdx >= 0 {
		n.docIdx = docIdx
	}
	return n, nil
}

// joinWrappedWord folds continuation lines of a wrapped unquoted value into
// the scalar, one space per line break.
func (p *parser) joinWrappedWord(n *astNode, idx int, lineIndent string) {
	for p.at(TokenNewline) &&
		p.ts.PeekN(1).Kind == TokenIndent &&
		indentDeeper(p.ts.PeekN(1).Raw, lineIndent) &&
		p.ts.PeekN(2).Kind == TokenWord {
		after := p.ts.PeekN(3).Kind
		if after != TokenNewline && after != TokenEOF && after != TokenComment {
			return
		}
		p.advance() // newline
		p.curIndent = p.cur().Raw
		p.advance() // indent
		wordIdx := p.curIdx()
		word := p.advance()
		n.scalar.strVal += " " + word.Decoded
		n.wrapSegs = append(n.wrapSegs, wordIdx)
		n.span.End = word.Span.End
	}
}

// scalarFromToken converts a scalar token into a node. Block-string tags
// may override the decoded indent unit and newline convention.
func (p *parser) scalarFromToken(tok Token, idx int, tag *tagSpec) (*astNode, error) {
	n := newASTNode(KindNone)
	n.tokIdx = idx
	n.span = tok.Span
	var v *Value
	switch tok.Kind {
	case TokenNone:
		v = None()
	case TokenTrue:
		v = Bool(true)
	case TokenFalse:
		v = Bool(false)
	case TokenNumber:
		var err error
		v, err = parseNumberToken(tok, p.src, p.opts)
		if err != nil {
			return nil, err
		}
	case TokenString:
		decoded := tok.Decoded
		if tag != nil && tok.Block {
			decoded = applyBlockOverrides(decoded, tag.indent, tag.newline)
		}
		v = Str(decoded)
	case TokenWord:
		v = Str(tok.Decoded)
	default:
		return nil, p.errTok(ErrUnexpected, tok, "expected scalar, got %s", tok.Kind)
	}
	v.pos = tok.Span.Start
	n.kind = v.Kind()
	n.scalar = v
	return n, nil
}

// applyBlockOverrides rewrites a block string's newline convention and
// re-applies an indent unit to every line.
func applyBlockOverrides(s, indent, newline string) string {
	if indent == "" && newline == "" {
		return s
	}
	trailing := strings.HasSuffix(s, "\n")
	body := strings.TrimSuffix(s, "\n")
	lines := strings.Split(body, "\n")
	if indent != "" {
		for i, line := range lines {
			if line != "" {
				lines[i] = indent + line
			}
		}
	}
	nl := "\n"
	if newline != "" {
		nl = newline
	}
	out := strings.Join(lines, nl)
	if trailing {
		out += nl
	}
	return out
}

// ============================================================
// Inline collections
// ============================================================

// skipInlineTrivia consumes layout and comments inside inline collections.
func (p *parser) skipInlineTrivia() error {
	return p.skipTrivia()
}

func (p *parser) parseInlineDict() (*astNode, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > p.opts.MaxNestingDepth {
		return nil, p.errTok(ErrDepthExceeded, p.cur(), "nesting exceeds max_nesting_depth %d", p.opts.MaxNestingDepth)
	}
	n := newASTNode(KindDict)
	n.inline = true
	n.tag = p.pendingTag
	p.pendingTag = nil
	open := p.advance()
	n.span = open.Span
	if p.at(TokenComment) {
		n.startTrailIdx = p.curIdx()
		p.advance()
	}
	for {
		if err := p.skipInlineTrivia(); err != nil {
			return nil, err
		}
		if p.atEOF() {
			return nil, p.errTok(ErrUnbalancedDelimiter, open, "unclosed '{'")
		}
		if p.at(TokenRBrace) {
			break
		}
		if p.at(TokenComma) {
			return nil, p.errTok(ErrEmptyCollectionItem, p.cur(), "empty dict entry")
		}
		keyDoc := p.takePendingDoc()
		if p.at(TokenDocComment) {
			keyDoc = p.curIdx()
			p.advance()
		}
		segs, err := p.parseKeypath()
		if err != nil {
			return nil, err
		}
		if !p.at(TokenEquals) {
			return nil, p.errTok(ErrUnexpected, p.cur(), "expected '=' after key")
		}
		p.advance()
		if err := p.skipInlineTrivia(); err != nil {
			return nil, err
		}
		val, err := p.parseValue(p.curIndent, true)
		if err != nil {
			return nil, err
		}
		if p.at(TokenComment) && val.trailIdx < 0 && val.endTrailIdx < 0 {
			val.trailIdx = p.curIdx()
			p.advance()
		}
		if err := p.insertPath(n, segs, val, keyDoc, -1); err != nil {
			return nil, err
		}
		if err := p.skipInlineTrivia(); err != nil {
			return nil, err
		}
		if p.at(TokenComma) {
			p.advance()
			continue
		}
		if p.atEOF() {
			return nil, p.errTok(ErrUnbalancedDelimiter, open, "unclosed '{'")
		}
		if !p.at(TokenRBrace) {
			return nil, p.errTok(ErrUnexpected, p.cur(), "expected ',' or '}', got %s", p.cur().Kind)
		}
	}
	close := p.advance()
	n.span.End = close.Span.End
	if p.at(TokenComment) {
		n.endTrailIdx = p.curIdx()
		p.advance()
	}
	return n, nil
}

func (p *parser) parseInlineList() (*astNode, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > p.opts.MaxNestingDepth {
		return nil, p.errTok(ErrDepthExceeded, p.cur(), "nesting exceeds max_nesting_depth %d", p.opts.MaxNestingDepth)
	}
	n := newASTNode(KindList)
	n.inline = true
	n.tag = p.pendingTag
	p.pendingTag = nil
	open := p.advance()
	n.span = open.Span
	if p.at(TokenComment) {
		n.startTrailIdx = p.curIdx()
		p.advance()
	}
	for {
		if err := p.skipInlineTrivia(); err != nil {
			return nil, err
		}
		if p.atEOF() {
			return nil, p.errTok(ErrUnbalancedDelimiter, open, "unclosed '['")
		}
		if p.at(TokenRBracket) {
			break
		}
		if p.at(TokenComma) {
			return nil, p.errTok(ErrEmptyCollectionItem, p.cur(), "empty list item")
		}
		item, err := p.parseValue(p.curIndent, true)
		if err != nil {
			return nil, err
		}
		if p.at(TokenComment) && item.trailIdx < 0 && item.endTrailIdx < 0 {
			item.trailIdx = p.curIdx()
			p.advance()
		}
		n.items = append(n.items, item)
		if err := p.skipInlineTrivia(); err != nil {
			return nil, err
		}
		if p.at(TokenComma) {
			p.advance()
			continue
		}
		if p.atEOF() {
			return nil, p.errTok(ErrUnbalancedDelimiter, open, "unclosed '['")
		}
		if !p.at(TokenRBracket) {
			return nil, p.errTok(ErrUnexpected, p.cur(), "expected ',' or ']', got %s", p.cur().Kind)
		}
	}
	close := p.advance()
	n.span.End = close.Span.End
	if p.at(TokenComment) {
		n.endTrailIdx = p.curIdx()
		p.advance()
	}
	return n, nil
}

// ============================================================
// Tags
// ============================================================

// parseTag consumes `(type, k=v, ...)>`. Reserved keywords are type, label,
// init, overwrite, inherit, indent, and newline.
func (p *parser) parseTag() (*tagSpec, error) {
	open := p.advance()
	spec := &tagSpec{pos: open.Span.Start}
	first := true
	for {
		if err := p.skipInlineTrivia(); err != nil {
			return nil, err
		}
		if p.atEOF() {
			return nil, p.errTok(ErrUnbalancedDelimiter, open, "unclosed tag")
		}
		if p.at(TokenTagClose) {
			p.advance()
			return spec, nil
		}
		if err := p.parseTagArg(spec, first); err != nil {
			return nil, err
		}
		first = false
		if err := p.skipInlineTrivia(); err != nil {
			return nil, err
		}
		if p.at(TokenComma) {
			p.advance()
			continue
		}
		if p.atEOF() {
			return nil, p.errTok(ErrUnbalancedDelimiter, open, "unclosed tag")
		}
		if !p.at(TokenTagClose) {
			return nil, p.errTok(ErrTagMismatch, p.cur(), "expected ',' or ')>' in tag, got %s", p.cur().Kind)
		}
	}
}

func (p *parser) parseTagArg(spec *tagSpec, first bool) error {
	tok := p.cur()
	if tok.Kind != TokenWord && tok.Kind != TokenString {
		return p.errTok(ErrTagMismatch, tok, "expected tag argument, got %s", tok.Kind)
	}
	name := tok.Decoded
	if p.ts.PeekN(1).Kind != TokenEquals {
		// Positional explicit type.
		if !first || spec.typeName != "" {
			return p.errTok(ErrTagMismatch, tok, "explicit type must be the first tag argument")
		}
		spec.typeName = name
		p.advance()
		return nil
	}
	p.advance()
	p.advance() // '='
	val := p.cur()
	switch name {
	case "type":
		if spec.typeName != "" {
			return p.errTok(ErrTagMismatch, tok, "type given twice in tag")
		}
		s, err := p.tagStringArg(val)
		if err != nil {
			return err
		}
		spec.typeName = s
	case "label":
		s, err := p.tagStringArg(val)
		if err != nil {
			return err
		}
		spec.label = s
	case "init":
		if val.Kind != TokenAlias {
			return p.errTok(ErrTagMismatch, val, "init requires an alias argument")
		}
		spec.initLabel = val.Decoded
		p.advance()
	case "overwrite":
		b, err := p.tagBoolArg(val)
		if err != nil {
			return err
		}
		spec.overwrite = b
		spec.hasOverwrite = true
	case "inherit":
		b, err := p.tagBoolArg(val)
		if err != nil {
			return err
		}
		spec.inherit = b
	case "indent":
		s, err := p.tagStringArg(val)
		if err != nil {
			return err
		}
		if strings.Trim(s, " \t") != "" {
			return p.errTok(ErrTagMismatch, val, "indent must contain only spaces and tabs")
		}
		spec.indent = s
	case "newline":
		s, err := p.tagStringArg(val)
		if err != nil {
			return err
		}
		if !validNewlineArg(s) {
			return p.errTok(ErrTagMismatch, val, "newline must be a line break sequence or empty")
		}
		spec.newline = s
	default:
		return p.errTok(ErrTagMismatch, tok, "unknown tag keyword %q", name)
	}
	return nil
}

func (p *parser) tagStringArg(tok Token) (string, error) {
	if tok.Kind != TokenWord && tok.Kind != TokenString {
		return "", p.errTok(ErrTagMismatch, tok, "expected string tag argument, got %s", tok.Kind)
	}
	p.advance()
	return tok.Decoded, nil
}

func (p *parser) tagBoolArg(tok Token) (bool, error) {
	switch tok.Kind {
	case TokenTrue:
		p.advance()
		return true, nil
	case TokenFalse:
		p.advance()
		return false, nil
	}
	return false, p.errTok(ErrTagMismatch, tok, "expected true or false, got %s", tok.Kind)
}

func validNewlineArg(s string) bool {
	switch s {
	case "", "\n", "\r", "\r\n", "\v", "\f", "\u0085", "\u2028", "\u2029":
		return true
	}
	return false
}
