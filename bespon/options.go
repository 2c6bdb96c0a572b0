package bespon

// LoadOptions configures parsing. A parse is a pure function of
// (source, options); the options record is never mutated by the decoder.
type LoadOptions struct {
	// Aliases enables label/alias resolution (default: true).
	Aliases bool

	// CircularReferences permits forward references and alias cycles.
	CircularReferences bool

	// CustomParsers maps type names to replacement scalar parsers.
	CustomParsers map[string]func(string) (*Value, error)

	// CustomTypes registers additional tag types.
	CustomTypes []DataType

	// ExtendedTypes enables set, odict, complex, and rational.
	ExtendedTypes bool

	// FloatOverflowToInf converts float overflow to ±inf instead of
	// raising NumericOverflow.
	FloatOverflowToInf bool

	// Integers enables the int type; when false, all numbers load
	// as floats.
	Integers bool

	// MaxNestingDepth bounds collection nesting and alias traversal.
	MaxNestingDepth int

	// OnlyASCIISource restricts the source to printable ASCII plus
	// tab and newline.
	OnlyASCIISource bool

	// OnlyASCIIUnquoted restricts unquoted strings and keys to ASCII.
	OnlyASCIIUnquoted bool

	// EmptyDefault is the value of an empty document. Nil means an
	// empty document is an error.
	EmptyDefault *Value
}

// DefaultLoadOptions returns the default load configuration.
func DefaultLoadOptions() *LoadOptions {
	return &LoadOptions{
		Aliases:            true,
		CircularReferences: false,
		ExtendedTypes:      false,
		FloatOverflowToInf: false,
		Integers:           true,
		MaxNestingDepth:    100,
		OnlyASCIISource:    false,
		OnlyASCIIUnquoted:  true,
	}
}

// DumpOptions configures fresh serialization.
type DumpOptions struct {
	// Aliases enables emitting labels and aliases for shared nodes.
	Aliases bool

	// Baseclass encodes unregistered types as their registered base.
	Baseclass bool

	// CircularReferences permits cycles in the value graph. Cycle
	// detection runs regardless; with Aliases off, cycles fail.
	CircularReferences bool

	// CompactInline drops optional whitespace inside inline collections.
	CompactInline bool

	// ExtendedTypes enables emitting set, odict, complex, and rational.
	ExtendedTypes bool

	// FlushStartListItem uses the flush "* " marker at the root margin.
	FlushStartListItem bool

	// HexFloats emits floats in hex form.
	HexFloats bool

	// InlineDepth is the nesting depth at which emission switches to
	// inline style. Zero means never.
	InlineDepth int

	// Integers emits ints as ints; when false, ints emit as floats.
	Integers bool

	// MaxNestingDepth bounds emission recursion.
	MaxNestingDepth int

	// NestingIndent is the indent unit for indentation style.
	NestingIndent string

	// OnlyASCIISource escapes all non-ASCII output.
	OnlyASCIISource bool

	// OnlyASCIIUnquoted quotes strings containing non-ASCII.
	OnlyASCIIUnquoted bool

	// TrailingCommas emits a trailing comma after the last item of every
	// non-empty inline collection.
	TrailingCommas bool

	// StartListItem is the list item marker in indentation style.
	StartListItem string
}

// DefaultDumpOptions returns the default dump configuration.
func DefaultDumpOptions() *DumpOptions {
	return &DumpOptions{
		Aliases:            false,
		Baseclass:          false,
		CircularReferences: false,
		CompactInline:      false,
		ExtendedTypes:      false,
		FlushStartListItem: true,
		HexFloats:          false,
		InlineDepth:        0,
		Integers:           true,
		MaxNestingDepth:    100,
		NestingIndent:      "    ",
		OnlyASCIISource:    false,
		OnlyASCIIUnquoted:  true,
		TrailingCommas:     false,
		StartListItem:      "  * ",
	}
}
