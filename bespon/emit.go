package bespon

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Serialize renders a value graph as a fresh document in indentation
// style, switching to inline style at InlineDepth. Shared and cyclic nodes
// are emitted once and referenced through generated labels when Aliases is
// enabled; cycles without aliases are an error.
func Serialize(v *Value, opts *DumpOptions) (string, error) {
	if opts == nil {
		opts = DefaultDumpOptions()
	}
	if v == nil {
		return "", fmt.Errorf("bespon: cannot serialize a nil value")
	}
	e := &emitter{
		opts:    opts,
		esc:     Escaper{OnlyASCII: opts.OnlyASCIISource},
		labels:  make(map[*Value]string),
		emitted: make(map[*Value]bool),
	}
	if err := e.analyze(v, make(map[*Value]bool), make(map[*Value]bool)); err != nil {
		return "", err
	}
	if err := e.emitRoot(v); err != nil {
		return "", err
	}
	return e.sb.String(), nil
}

type emitter struct {
	opts *DumpOptions
	esc  Escaper

	labels  map[*Value]string // nodes that must carry a label
	emitted map[*Value]bool   // labeled nodes already written
	nlabels int

	sb strings.Builder
}

// analyze walks the graph once, assigning labels to shared and cyclic
// collections. Cycle detection runs whether or not aliases are enabled.
func (e *emitter) analyze(v *Value, stack, seen map[*Value]bool) error {
	if v.kind != KindDict && v.kind != KindList {
		return nil
	}
	if stack[v] {
		if !e.opts.Aliases || !e.opts.CircularReferences {
			return fmt.Errorf("bespon: circular reference in value graph")
		}
		e.ensureLabel(v)
		return nil
	}
	if seen[v] {
		if e.opts.Aliases {
			e.ensureLabel(v)
		}
		return nil
	}
	seen[v] = true
	stack[v] = true
	defer delete(stack, v)
	if len(stack) > e.opts.MaxNestingDepth {
		return fmt.Errorf("bespon: nesting exceeds max_nesting_depth %d", e.opts.MaxNestingDepth)
	}
	switch v.kind {
	case KindDict:
		for i := range v.dictVal {
			if err := e.analyze(v.dictVal[i].Val, stack, seen); err != nil {
				return err
			}
		}
	case KindList:
		for _, item := range v.listVal {
			if err := e.analyze(item, stack, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *emitter) ensureLabel(v *Value) {
	if _, ok := e.labels[v]; ok {
		return
	}
	if v.label != "" {
		e.labels[v] = v.label
		return
	}
	e.nlabels++
	e.labels[v] = fmt.Sprintf("ref%d", e.nlabels)
}

// ============================================================
// Emission
// ============================================================

func (e *emitter) emitRoot(v *Value) error {
	switch v.kind {
	case KindDict:
		if len(v.dictVal) == 0 {
			e.sb.WriteString("{}\n")
			return nil
		}
		return e.emitDictEntries(v, "", 1)
	case KindList:
		if len(v.listVal) == 0 {
			e.sb.WriteString("[]\n")
			return nil
		}
		marker := e.opts.StartListItem
		if e.opts.FlushStartListItem {
			marker = "* "
		}
		return e.emitListItems(v, "", marker, 1)
	default:
		if err := e.emitValue(v, "", 1); err != nil {
			return err
		}
		e.sb.WriteByte('\n')
		return nil
	}
}

// emitValue writes v after a "key = " or item marker already on the line.
func (e *emitter) emitValue(v *Value, indent string, depth int) error {
	if depth > e.opts.MaxNestingDepth {
		return fmt.Errorf("bespon: nesting exceeds max_nesting_depth %d", e.opts.MaxNestingDepth)
	}
	if name, ok := e.labels[v]; ok {
		if e.emitted[v] {
			e.sb.WriteByte('$')
			e.sb.WriteString(name)
			return nil
		}
		e.emitted[v] = true
	}
	switch v.kind {
	case KindDict, KindList:
		return e.emitCollection(v, indent, depth)
	default:
		return e.emitScalar(v)
	}
}

func (e *emitter) emitCollection(v *Value, indent string, depth int) error {
	tag := e.collectionTag(v)
	inline := e.opts.InlineDepth > 0 && depth >= e.opts.InlineDepth
	if tag != "" {
		e.sb.WriteString(tag)
		if !inline {
			e.sb.WriteByte(' ')
			inline = true // a tagged block value would need its own line
		}
	}
	if v.kind == KindDict && (inline || len(v.dictVal) == 0) {
		return e.emitInlineDict(v, depth)
	}
	if v.kind == KindList && (inline || len(v.listVal) == 0) {
		return e.emitInlineList(v, depth)
	}
	// A block value starts on the next line: drop the space after "=".
	if s := e.sb.String(); strings.HasSuffix(s, " ") {
		e.sb.Reset()
		e.sb.WriteString(s[:len(s)-1])
	}
	e.sb.WriteByte('\n')
	if v.kind == KindDict {
		return e.emitDictEntries(v, indent+e.opts.NestingIndent, depth)
	}
	return e.emitListItems(v, indent+e.opts.NestingIndent, e.opts.StartListItem, depth)
}

// collectionTag renders the tag a collection needs: a generated label, an
// explicit type, or both.
func (e *emitter) collectionTag(v *Value) string {
	var parts []string
	if t := v.explicitType; t != "" && !e.opts.Baseclass {
		parts = append(parts, t)
	}
	if name, ok := e.labels[v]; ok {
		parts = append(parts, "label="+name)
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")>"
}

func (e *emitter) emitDictEntries(v *Value, indent string, depth int) error {
	for i := range v.dictVal {
		e.sb.WriteString(indent)
		if err := e.emitKey(v.dictVal[i].Key); err != nil {
			return err
		}
		e.sb.WriteString(" = ")
		if err := e.emitValue(v.dictVal[i].Val, indent, depth+1); err != nil {
			return err
		}
		if !strings.HasSuffix(e.sb.String(), "\n") {
			e.sb.WriteByte('\n')
		}
	}
	return nil
}

func (e *emitter) emitListItems(v *Value, indent, marker string, depth int) error {
	itemIndent := indent + strings.Repeat(" ", len(marker))
	for _, item := range v.listVal {
		e.sb.WriteString(indent)
		e.sb.WriteString(marker)
		if item.kind == KindDict && len(item.dictVal) > 0 && !(e.opts.InlineDepth > 0 && depth+1 >= e.opts.InlineDepth) && item.explicitType == "" {
			// First entry shares the marker line; the rest align under it.
			if err := e.emitDictOnMarkerLine(item, itemIndent, depth+1); err != nil {
				return err
			}
			continue
		}
		if err := e.emitValue(item, itemIndent, depth+1); err != nil {
			return err
		}
		if !strings.HasSuffix(e.sb.String(), "\n") {
			e.sb.WriteByte('\n')
		}
	}
	return nil
}

func (e *emitter) emitDictOnMarkerLine(v *Value, indent string, depth int) error {
	if name, ok := e.labels[v]; ok {
		if e.emitted[v] {
			e.sb.WriteByte('$')
			e.sb.WriteString(name)
			e.sb.WriteByte('\n')
			return nil
		}
		e.emitted[v] = true
		e.sb.WriteString("(label=" + name + ")> ")
		return e.emitInlineDict(v, depth)
	}
	for i := range v.dictVal {
		if i > 0 {
			e.sb.WriteString(indent)
		}
		if err := e.emitKey(v.dictVal[i].Key); err != nil {
			return err
		}
		e.sb.WriteString(" = ")
		if err := e.emitValue(v.dictVal[i].Val, indent, depth+1); err != nil {
			return err
		}
		if !strings.HasSuffix(e.sb.String(), "\n") {
			e.sb.WriteByte('\n')
		}
	}
	return nil
}

func (e *emitter) emitInlineDict(v *Value, depth int) error {
	sep, pad := ", ", " "
	if e.opts.CompactInline {
		sep, pad = ",", ""
	}
	e.sb.WriteByte('{')
	if len(v.dictVal) > 0 {
		e.sb.WriteString(pad)
		for i := range v.dictVal {
			if i > 0 {
				e.sb.WriteString(sep)
			}
			if err := e.emitKey(v.dictVal[i].Key); err != nil {
				return err
			}
			if e.opts.CompactInline {
				e.sb.WriteByte('=')
			} else {
				e.sb.WriteString(" = ")
			}
			if err := e.emitInlineValue(v.dictVal[i].Val, depth+1); err != nil {
				return err
			}
		}
		if e.opts.TrailingCommas {
			e.sb.WriteByte(',')
		}
		e.sb.WriteString(pad)
	}
	e.sb.WriteByte('}')
	return nil
}

func (e *emitter) emitInlineList(v *Value, depth int) error {
	sep := ", "
	if e.opts.CompactInline {
		sep = ","
	}
	e.sb.WriteByte('[')
	for i, item := range v.listVal {
		if i > 0 {
			e.sb.WriteString(sep)
		}
		if err := e.emitInlineValue(item, depth+1); err != nil {
			return err
		}
	}
	if e.opts.TrailingCommas && len(v.listVal) > 0 {
		e.sb.WriteByte(',')
	}
	e.sb.WriteByte(']')
	return nil
}

// emitInlineValue writes a value that must stay on the current line.
func (e *emitter) emitInlineValue(v *Value, depth int) error {
	if depth > e.opts.MaxNestingDepth {
		return fmt.Errorf("bespon: nesting exceeds max_nesting_depth %d", e.opts.MaxNestingDepth)
	}
	if name, ok := e.labels[v]; ok {
		if e.emitted[v] {
			e.sb.WriteByte('$')
			e.sb.WriteString(name)
			return nil
		}
		e.emitted[v] = true
	}
	switch v.kind {
	case KindDict:
		if tag := e.collectionTag(v); tag != "" {
			e.sb.WriteString(tag)
			e.sb.WriteByte(' ')
		}
		return e.emitInlineDict(v, depth)
	case KindList:
		if tag := e.collectionTag(v); tag != "" {
			e.sb.WriteString(tag)
			e.sb.WriteByte(' ')
		}
		return e.emitInlineList(v, depth)
	default:
		return e.emitScalar(v)
	}
}

// ============================================================
// Scalars and keys
// ============================================================

func (e *emitter) emitKey(k *Value) error {
	switch k.kind {
	case KindNone:
		e.sb.WriteString("none")
	case KindBool:
		if k.boolVal {
			e.sb.WriteString("true")
		} else {
			e.sb.WriteString("false")
		}
	case KindInt:
		e.sb.WriteString(strconv.FormatInt(k.intVal, 10))
	case KindFloat:
		e.sb.WriteString(e.floatText(k.floatVal))
	case KindStr:
		if validUnquotedValue(k.strVal, e.opts.OnlyASCIIUnquoted || e.opts.OnlyASCIISource) && !strings.Contains(k.strVal, " ") {
			e.sb.WriteString(k.strVal)
		} else {
			e.sb.WriteByte('"')
			e.sb.WriteString(e.esc.Escape(k.strVal, '"', true))
			e.sb.WriteByte('"')
		}
	default:
		return fmt.Errorf("bespon: %s cannot be used as a dict key", k.kind)
	}
	return nil
}

func (e *emitter) emitScalar(v *Value) error {
	switch v.kind {
	case KindNone:
		e.sb.WriteString("none")
	case KindBool:
		if v.boolVal {
			e.sb.WriteString("true")
		} else {
			e.sb.WriteString("false")
		}
	case KindInt:
		if !e.opts.Integers {
			e.sb.WriteString(e.floatText(float64(v.intVal)))
			break
		}
		e.sb.WriteString(strconv.FormatInt(v.intVal, 10))
	case KindFloat:
		e.sb.WriteString(e.floatText(v.floatVal))
	case KindComplex:
		if !e.opts.ExtendedTypes {
			return fmt.Errorf("bespon: complex values require extended_types")
		}
		e.sb.WriteString(renderComplex(v.complexVal))
	case KindRational:
		if !e.opts.ExtendedTypes {
			return fmt.Errorf("bespon: rational values require extended_types")
		}
		e.sb.WriteString(v.ratVal.Num().String())
		e.sb.WriteByte('/')
		e.sb.WriteString(v.ratVal.Denom().String())
	case KindStr:
		e.emitString(v)
	case KindBytes:
		e.emitBytes(v)
	default:
		return fmt.Errorf("bespon: cannot serialize a %s scalar", v.kind)
	}
	return nil
}

func (e *emitter) floatText(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if e.opts.HexFloats {
		return strconv.FormatFloat(f, 'x', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (e *emitter) emitString(v *Value) {
	s := v.strVal
	if t := v.explicitType; t != "" && !e.opts.Baseclass {
		e.sb.WriteString("(" + t + ")> ")
	}
	if validUnquotedValue(s, e.opts.OnlyASCIIUnquoted || e.opts.OnlyASCIISource) {
		e.sb.WriteString(s)
		return
	}
	e.sb.WriteByte('"')
	e.sb.WriteString(e.esc.Escape(s, '"', true))
	e.sb.WriteByte('"')
}

// emitBytes renders bytes through their tagged text form: base16 when the
// value was loaded that way, base64 otherwise.
func (e *emitter) emitBytes(v *Value) {
	if v.explicitType == "base16" && !e.opts.Baseclass {
		e.sb.WriteString(`(base16)> "`)
		e.sb.WriteString(hex.EncodeToString(v.bytesVal))
		e.sb.WriteString(`"`)
		return
	}
	e.sb.WriteString(`(base64)> "`)
	e.sb.WriteString(base64.StdEncoding.EncodeToString(v.bytesVal))
	e.sb.WriteString(`"`)
}
