package bespon

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// DataType describes a registered tag type. Custom types supplied through
// LoadOptions.CustomTypes use the same record.
type DataType struct {
	// Name is the tag spelling.
	Name string

	// Basetype is the registered type this one reduces to under the
	// Baseclass dump option.
	Basetype string

	// CompatibleImplicit lists the untagged kinds this type may be
	// applied to.
	CompatibleImplicit []Kind

	// Parser converts the decoded string form, for string-shaped types.
	Parser func(string) (*Value, error)

	// ASCIIBytes restricts string content to ASCII before byte conversion.
	ASCIIBytes bool

	// Mutable marks collection types.
	Mutable bool

	// Tagable permits explicit tagging; none and bool are not tagable.
	Tagable bool
}

func coreTypes() []DataType {
	return []DataType{
		{Name: "none", Basetype: "none"},
		{Name: "bool", Basetype: "bool"},
		{Name: "str", Basetype: "str", CompatibleImplicit: []Kind{KindStr}, Tagable: true},
		{Name: "int", Basetype: "int", CompatibleImplicit: []Kind{KindInt}, Tagable: true},
		{Name: "float", Basetype: "float", CompatibleImplicit: []Kind{KindFloat, KindInt}, Tagable: true},
		{Name: "bytes", Basetype: "bytes", CompatibleImplicit: []Kind{KindStr}, Parser: parseBytesScalar, ASCIIBytes: true, Tagable: true},
		{Name: "base16", Basetype: "bytes", CompatibleImplicit: []Kind{KindStr}, Parser: parseBase16Scalar, ASCIIBytes: true, Tagable: true},
		{Name: "base64", Basetype: "bytes", CompatibleImplicit: []Kind{KindStr}, Parser: parseBase64Scalar, ASCIIBytes: true, Tagable: true},
		{Name: "dict", Basetype: "dict", CompatibleImplicit: []Kind{KindDict}, Mutable: true, Tagable: true},
		{Name: "list", Basetype: "list", CompatibleImplicit: []Kind{KindList}, Mutable: true, Tagable: true},
	}
}

func extendedTypes() []DataType {
	return []DataType{
		{Name: "set", Basetype: "list", CompatibleImplicit: []Kind{KindList}, Mutable: true, Tagable: true},
		{Name: "odict", Basetype: "dict", CompatibleImplicit: []Kind{KindDict}, Mutable: true, Tagable: true},
		{Name: "complex", Basetype: "complex", CompatibleImplicit: []Kind{KindComplex, KindFloat, KindInt}, Tagable: true},
		{Name: "rational", Basetype: "rational", CompatibleImplicit: []Kind{KindRational, KindInt}, Tagable: true},
	}
}

// buildRegistry assembles the effective type table from the core set, the
// ExtendedTypes gate, CustomTypes, and CustomParsers overrides.
func buildRegistry(opts *LoadOptions) (map[string]DataType, error) {
	reg := make(map[string]DataType)
	for _, dt := range coreTypes() {
		reg[dt.Name] = dt
	}
	if opts.ExtendedTypes {
		for _, dt := range extendedTypes() {
			reg[dt.Name] = dt
		}
	}
	for _, dt := range opts.CustomTypes {
		if dt.Name == "" {
			return nil, fmt.Errorf("bespon: custom type with empty name")
		}
		if _, exists := reg[dt.Name]; exists {
			return nil, fmt.Errorf("bespon: custom type %q collides with a registered type", dt.Name)
		}
		reg[dt.Name] = dt
	}
	for name, p := range opts.CustomParsers {
		dt, ok := reg[name]
		if !ok {
			return nil, fmt.Errorf("bespon: custom parser for unregistered type %q", name)
		}
		dt.Parser = p
		reg[name] = dt
	}
	return reg, nil
}

func parseBytesScalar(s string) (*Value, error) {
	return Bytes([]byte(s)), nil
}

// parseBase16Scalar decodes hex content. Whitespace is stripped first;
// mixed-case digits are rejected.
func parseBase16Scalar(s string) (*Value, error) {
	clean := stripWhitespace(s)
	hasLower := strings.ContainsAny(clean, "abcdef")
	hasUpper := strings.ContainsAny(clean, "ABCDEF")
	if hasLower && hasUpper {
		return nil, fmt.Errorf("base16 content mixes upper and lower case")
	}
	b, err := hex.DecodeString(strings.ToLower(clean))
	if err != nil {
		return nil, fmt.Errorf("invalid base16 content: %v", err)
	}
	return Bytes(b), nil
}

func parseBase64Scalar(s string) (*Value, error) {
	b, err := base64.StdEncoding.DecodeString(stripWhitespace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 content: %v", err)
	}
	return Bytes(b), nil
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || isNewlineRune(r) {
			return -1
		}
		return r
	}, s)
}

// tagSpec is the parsed form of a '(type, k=v, ...)>' tag.
type tagSpec struct {
	typeName     string
	label        string
	initLabel    string
	overwrite    bool
	hasOverwrite bool
	inherit      bool
	indent       string
	newline      string
	pos          Position
}

// ============================================================
// Resolver
// ============================================================

// resolver converts the raw node tree into the final value graph, wiring
// labels, aliases, and init inheritance, and applying explicit types.
type resolver struct {
	src    string
	opts   *LoadOptions
	reg    map[string]DataType
	toks   []Token
	labels map[string]*astNode
	depth  int
}

func newResolver(src string, opts *LoadOptions, toks []Token, labels map[string]*astNode) (*resolver, error) {
	reg, err := buildRegistry(opts)
	if err != nil {
		return nil, err
	}
	return &resolver{src: src, opts: opts, reg: reg, toks: toks, labels: labels}, nil
}

func (r *resolver) resolve(n *astNode) (*Value, error) {
	if n.resolved != nil {
		return n.resolved, nil
	}
	if n.kind == KindDict || n.kind == KindList {
		r.depth++
		defer func() { r.depth-- }()
		if r.depth > r.opts.MaxNestingDepth {
			return nil, newErr(ErrDepthExceeded, r.src, n.span.Start, "nesting exceeds max_nesting_depth %d", r.opts.MaxNestingDepth)
		}
	}
	switch {
	case n.alias:
		return r.resolveAlias(n)
	case n.kind == KindDict:
		return r.resolveDict(n)
	case n.kind == KindList:
		return r.resolveList(n)
	default:
		return r.resolveScalar(n)
	}
}

func (r *resolver) resolveAlias(n *astNode) (*Value, error) {
	name := r.toks[n.tokIdx].Decoded
	if !r.opts.Aliases {
		return nil, newErr(ErrUndefinedAlias, r.src, n.span.Start, "alias $%s used with aliases disabled", name)
	}
	target, ok := r.labels[name]
	if !ok {
		return nil, newErr(ErrUndefinedAlias, r.src, n.span.Start, "undefined label $%s", name)
	}
	if target.resolving {
		if !r.opts.CircularReferences {
			return nil, newErr(ErrCircularReference, r.src, n.span.Start, "alias $%s forms a cycle", name)
		}
		if target.resolved == nil {
			return nil, newErr(ErrCircularReference, r.src, n.span.Start, "alias $%s cycles through a scalar", name)
		}
		return target.resolved, nil
	}
	if target.resolved != nil {
		return target.resolved, nil
	}
	if !r.opts.CircularReferences {
		return nil, newErr(ErrUndefinedAlias, r.src, n.span.Start, "forward reference to $%s requires circular_references", name)
	}
	return r.resolve(target)
}

func (r *resolver) resolveDict(n *astNode) (*Value, error) {
	v := &Value{kind: KindDict, pos: n.span.Start}
	n.resolved = v
	n.resolving = true
	defer func() { n.resolving = false }()
	overwrite := n.keypathCreated
	if n.tag != nil && n.tag.hasOverwrite {
		overwrite = n.tag.overwrite
	}
	if n.tag != nil && n.tag.initLabel != "" {
		if err := r.applyInit(n, v); err != nil {
			return nil, err
		}
		overwrite = true
	}
	for _, e := range n.entries {
		key, err := r.resolve(e.key)
		if err != nil {
			return nil, err
		}
		if err := validKey(key, r.src, e.key.span.Start); err != nil {
			return nil, err
		}
		val, err := r.resolve(e.val)
		if err != nil {
			return nil, err
		}
		if _, exists := v.getEntry(key); exists && !overwrite {
			ks, _ := keyString(key)
			return nil, newErr(ErrDuplicateKey, r.src, e.key.span.Start, "duplicate key %q", ks[2:])
		}
		v.setEntry(key, val)
	}
	if err := r.applyTag(n, v); err != nil {
		return nil, err
	}
	return v, nil
}

// applyInit seeds a dict from the labeled dict named by init=$other.
func (r *resolver) applyInit(n *astNode, v *Value) error {
	target, ok := r.labels[n.tag.initLabel]
	if !ok {
		return newErr(ErrUndefinedAlias, r.src, n.tag.pos, "init references undefined label $%s", n.tag.initLabel)
	}
	base, err := r.resolve(target)
	if err != nil {
		return err
	}
	if base.Kind() != KindDict {
		return newErr(ErrTagMismatch, r.src, n.tag.pos, "init target $%s is not a dict", n.tag.initLabel)
	}
	for _, e := range base.dictVal {
		v.setEntry(e.Key, e.Val)
	}
	return nil
}

func (r *resolver) resolveList(n *astNode) (*Value, error) {
	v := &Value{kind: KindList, pos: n.span.Start}
	n.resolved = v
	n.resolving = true
	defer func() { n.resolving = false }()
	for _, item := range n.items {
		iv, err := r.resolve(item)
		if err != nil {
			return nil, err
		}
		v.listVal = append(v.listVal, iv)
	}
	if err := r.applyTag(n, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *resolver) resolveScalar(n *astNode) (*Value, error) {
	n.resolving = true
	defer func() { n.resolving = false }()
	v := n.scalar
	if n.tag != nil {
		tagged, err := r.applyScalarType(n, v)
		if err != nil {
			return nil, err
		}
		v = tagged
		if err := r.applyTag(n, v); err != nil {
			return nil, err
		}
	}
	n.resolved = v
	return v, nil
}

// applyTag records the label and explicit type carried by a node's tag.
func (r *resolver) applyTag(n *astNode, v *Value) error {
	if n.tag == nil {
		return nil
	}
	if n.tag.label != "" {
		v.label = n.tag.label
	}
	if n.tag.typeName != "" && (n.kind == KindDict || n.kind == KindList) {
		dt, ok := r.reg[n.tag.typeName]
		if !ok {
			return newErr(ErrUnknownType, r.src, n.tag.pos, "unknown type %q", n.tag.typeName)
		}
		if !dt.Tagable {
			return newErr(ErrTagMismatch, r.src, n.tag.pos, "type %q cannot be applied explicitly", n.tag.typeName)
		}
		if !kindCompatible(dt, n.kind) {
			return newErr(ErrIncompatibleType, r.src, n.tag.pos, "type %q is not compatible with %s form", n.tag.typeName, n.kind)
		}
		if n.tag.typeName != n.kind.String() {
			v.explicitType = n.tag.typeName
		}
	}
	return nil
}

// applyScalarType converts a scalar according to its tag's explicit type.
func (r *resolver) applyScalarType(n *astNode, v *Value) (*Value, error) {
	t := n.tag.typeName
	if t == "" {
		return v, nil
	}
	dt, ok := r.reg[t]
	if !ok {
		return nil, newErr(ErrUnknownType, r.src, n.tag.pos, "unknown type %q", t)
	}
	if !dt.Tagable {
		return nil, newErr(ErrTagMismatch, r.src, n.tag.pos, "type %q cannot be applied explicitly", t)
	}
	if !kindCompatible(dt, v.Kind()) {
		return nil, newErr(ErrIncompatibleType, r.src, n.tag.pos, "type %q is not compatible with %s form", t, v.Kind())
	}
	if dt.Parser != nil && v.Kind() == KindStr {
		if dt.ASCIIBytes && !isASCIIString(v.strVal) {
			return nil, newErr(ErrIncompatibleType, r.src, n.tag.pos, "type %q requires ASCII content", t)
		}
		out, err := dt.Parser(v.strVal)
		if err != nil {
			return nil, newErr(ErrIncompatibleType, r.src, n.span.Start, "%v", err)
		}
		out.pos = v.pos
		out.explicitType = explicitName(t, out.Kind())
		return out, nil
	}
	conv, err := convertScalar(t, v)
	if err != nil {
		return nil, newErr(ErrIncompatibleType, r.src, n.tag.pos, "%v", err)
	}
	return conv, nil
}

// convertScalar widens a numeric scalar to the tagged type.
func convertScalar(t string, v *Value) (*Value, error) {
	out := v
	switch t {
	case "float":
		if v.Kind() == KindInt {
			out = Float(float64(v.intVal))
		}
	case "complex":
		switch v.Kind() {
		case KindInt:
			out = Complex(complex(float64(v.intVal), 0))
		case KindFloat:
			out = Complex(complex(v.floatVal, 0))
		}
	case "rational":
		if v.Kind() == KindInt {
			out = Rational(big.NewRat(v.intVal, 1))
		}
	case "str", "int":
		// Identity on their own kinds.
	default:
		return nil, fmt.Errorf("type %q has no scalar conversion", t)
	}
	if out != v {
		out.pos = v.pos
	}
	out.explicitType = explicitName(t, out.Kind())
	return out, nil
}

// explicitName drops the explicit type when it matches the implicit kind.
func explicitName(t string, k Kind) string {
	if t == k.String() {
		return ""
	}
	return t
}

func kindCompatible(dt DataType, k Kind) bool {
	for _, c := range dt.CompatibleImplicit {
		if c == k {
			return true
		}
	}
	return false
}

// validKey rejects key forms without an identity: collections, bytes,
// complex, rational, and nan.
func validKey(key *Value, src string, pos Position) error {
	if _, ok := keyString(key); !ok {
		if key.Kind() == KindFloat {
			return newErr(ErrIncompatibleType, src, pos, "nan cannot be used as a dict key")
		}
		return newErr(ErrIncompatibleType, src, pos, "%s cannot be used as a dict key", key.Kind())
	}
	return nil
}

func isASCIIString(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
