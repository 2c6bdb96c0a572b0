package bespon

import (
	"errors"
	"strings"
	"testing"
)

// ============================================================
// Round-Trip Editing Tests
// ============================================================

func rtParse(t *testing.T, src string) *RoundtripAST {
	t.Helper()
	ast, err := ParseRoundtrip(src, nil)
	if err != nil {
		t.Fatalf("ParseRoundtrip failed: %v", err)
	}
	return ast
}

func TestRoundtrip_DumpsIdentity(t *testing.T) {
	src := "### the port ###\n" +
		"port = 8080\n" +
		"host = example # primary\n" +
		"servers =\n" +
		"    * alpha\n" +
		"    * beta\n"
	ast := rtParse(t, src)
	if got := ast.Dumps(); got != src {
		t.Errorf("Dumps = %q, want source unchanged", got)
	}
}

func TestRoundtrip_ReplaceVal(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		path     []interface{}
		obj      interface{}
		expected string
	}{
		{
			"hex with grouping",
			"mask = 0xDEAD_BEEF\n",
			[]interface{}{"mask"}, 0xABCDEF12,
			"mask = 0xabcd_ef12\n",
		},
		{
			"decimal grouping",
			"n = 1_000_000\n",
			[]interface{}{"n"}, 12345678,
			"n = 12_345_678\n",
		},
		{
			"octal base kept",
			"mode = 0o644\n",
			[]interface{}{"mode"}, 0o755,
			"mode = 0o755\n",
		},
		{
			"double quoted string",
			"greeting = \"hi\"\n",
			[]interface{}{"greeting"}, "bye",
			"greeting = \"bye\"\n",
		},
		{
			"unquoted stays unquoted",
			"env = staging\n",
			[]interface{}{"env"}, "prod",
			"env = prod\n",
		},
		{
			"float keeps decimal form",
			"ratio = 2.5\n",
			[]interface{}{"ratio"}, 7.0,
			"ratio = 7.0\n",
		},
		{
			"int to float same class",
			"n = 42\n",
			[]interface{}{"n"}, 2.5,
			"n = 2.5\n",
		},
		{
			"bool",
			"on = true\n",
			[]interface{}{"on"}, false,
			"on = false\n",
		},
		{
			"nested path",
			"srv = {host = alpha, port = 1}\n",
			[]interface{}{"srv", "port"}, 99,
			"srv = {host = alpha, port = 99}\n",
		},
		{
			"list slot",
			"ports = [1, 2, 3]\n",
			[]interface{}{"ports", 1}, 20,
			"ports = [1, 20, 3]\n",
		},
		{
			"surrounding text untouched",
			"# heading\na = 1\nb = old # tail\nc = 3\n",
			[]interface{}{"b"}, "new",
			"# heading\na = 1\nb = new # tail\nc = 3\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ast := rtParse(t, tt.src)
			if err := ast.ReplaceVal(tt.path, tt.obj); err != nil {
				t.Fatalf("ReplaceVal failed: %v", err)
			}
			if got := ast.Dumps(); got != tt.expected {
				t.Errorf("Dumps = %q, want %q", got, tt.expected)
			}
			if diags := ast.Diagnostics(); len(diags) != 0 {
				t.Errorf("Diagnostics = %v, want none", diags)
			}
		})
	}
}

func TestRoundtrip_StyleFallback(t *testing.T) {
	t.Run("unquoted to quoted", func(t *testing.T) {
		ast := rtParse(t, "env = staging\n")
		if err := ast.ReplaceVal([]interface{}{"env"}, "has space"); err != nil {
			t.Fatalf("ReplaceVal failed: %v", err)
		}
		if got := ast.Dumps(); got != "env = \"has space\"\n" {
			t.Errorf("Dumps = %q, want quoted replacement", got)
		}
		diags := ast.Diagnostics()
		if len(diags) != 1 {
			t.Fatalf("Diagnostics = %v, want one entry", diags)
		}
		if !errors.Is(diags[0], &Error{Kind: ErrStyleFallback}) {
			t.Errorf("diagnostic = %v, want ErrStyleFallback", diags[0])
		}
	})

	t.Run("literal to escaped", func(t *testing.T) {
		ast := rtParse(t, "k = `plain`\n")
		if err := ast.ReplaceVal([]interface{}{"k"}, "two\nlines"); err != nil {
			t.Fatalf("ReplaceVal failed: %v", err)
		}
		if got := ast.Dumps(); got != "k = \"two\\nlines\"\n" {
			t.Errorf("Dumps = %q, want escaped style", got)
		}
		if diags := ast.Diagnostics(); len(diags) != 1 {
			t.Errorf("Diagnostics = %v, want one entry", diags)
		}
	})

	t.Run("literal kept when it fits", func(t *testing.T) {
		ast := rtParse(t, "k = `plain`\n")
		if err := ast.ReplaceVal([]interface{}{"k"}, "other"); err != nil {
			t.Fatalf("ReplaceVal failed: %v", err)
		}
		if got := ast.Dumps(); got != "k = `other`\n" {
			t.Errorf("Dumps = %q, want literal style kept", got)
		}
		if diags := ast.Diagnostics(); len(diags) != 0 {
			t.Errorf("Diagnostics = %v, want none", diags)
		}
	})
}

func TestRoundtrip_BlockString(t *testing.T) {
	src := "k = '''\nold line\n'''\n"
	ast := rtParse(t, src)
	if err := ast.ReplaceVal([]interface{}{"k"}, "new one\nnew two\n"); err != nil {
		t.Fatalf("ReplaceVal failed: %v", err)
	}
	expected := "k = '''\nnew one\nnew two\n'''\n"
	if got := ast.Dumps(); got != expected {
		t.Errorf("Dumps = %q, want %q", got, expected)
	}
}

func TestRoundtrip_EnforceTypes(t *testing.T) {
	t.Run("class mismatch rejected", func(t *testing.T) {
		ast := rtParse(t, "n = 42\n")
		err := ast.ReplaceVal([]interface{}{"n"}, "oops")
		if !errors.Is(err, &Error{Kind: ErrTypeMismatch}) {
			t.Errorf("error = %v, want ErrTypeMismatch", err)
		}
	})

	t.Run("disabled permits cross-class", func(t *testing.T) {
		ast := rtParse(t, "flag = true\n")
		ast.EnforceTypes = false
		if err := ast.ReplaceVal([]interface{}{"flag"}, 7); err != nil {
			t.Fatalf("ReplaceVal failed: %v", err)
		}
		if got := ast.Dumps(); got != "flag = 7\n" {
			t.Errorf("Dumps = %q, want flag = 7", got)
		}
	})

	t.Run("collection not replaceable", func(t *testing.T) {
		ast := rtParse(t, "k = {a = 1}\n")
		err := ast.ReplaceVal([]interface{}{"k"}, 5)
		if !errors.Is(err, &Error{Kind: ErrTypeMismatch}) {
			t.Errorf("error = %v, want ErrTypeMismatch", err)
		}
	})
}

func TestRoundtrip_ReplaceKey(t *testing.T) {
	t.Run("all occurrences renamed", func(t *testing.T) {
		src := "srv.host = alpha\n" +
			"srv.port = 1\n" +
			"|=== srv\n" +
			"tls = true\n" +
			"|===/\n"
		ast := rtParse(t, src)
		if err := ast.ReplaceKey([]interface{}{"srv"}, "server"); err != nil {
			t.Fatalf("ReplaceKey failed: %v", err)
		}
		expected := "server.host = alpha\n" +
			"server.port = 1\n" +
			"|=== server\n" +
			"tls = true\n" +
			"|===/\n"
		if got := ast.Dumps(); got != expected {
			t.Errorf("Dumps = %q, want %q", got, expected)
		}
	})

	t.Run("collision rejected", func(t *testing.T) {
		ast := rtParse(t, "a = 1\nb = 2\n")
		err := ast.ReplaceKey([]interface{}{"a"}, "b")
		if !errors.Is(err, &Error{Kind: ErrKeyCollision}) {
			t.Errorf("error = %v, want ErrKeyCollision", err)
		}
	})

	t.Run("space in key rejected", func(t *testing.T) {
		ast := rtParse(t, "a = 1\n")
		err := ast.ReplaceKey([]interface{}{"a"}, "bad key")
		if err == nil || !strings.Contains(err.Error(), "contains a space") {
			t.Errorf("error = %v, want space complaint", err)
		}
	})

	t.Run("list slot is not an entry", func(t *testing.T) {
		ast := rtParse(t, "k = [1, 2]\n")
		err := ast.ReplaceKey([]interface{}{"k", 0}, "x")
		if !errors.Is(err, &Error{Kind: ErrPathNotFound}) {
			t.Errorf("error = %v, want ErrPathNotFound", err)
		}
	})

	t.Run("class mismatch rejected", func(t *testing.T) {
		ast := rtParse(t, "a = 1\n")
		err := ast.ReplaceKey([]interface{}{"a"}, 5)
		if !errors.Is(err, &Error{Kind: ErrTypeMismatch}) {
			t.Errorf("error = %v, want ErrTypeMismatch", err)
		}
	})
}

func TestRoundtrip_PathErrors(t *testing.T) {
	ast := rtParse(t, "k = [1, 2]\nd = {a = 1}\n")

	tests := []struct {
		name    string
		path    []interface{}
		message string
	}{
		{"missing key", []interface{}{"missing"}, "no key"},
		{"index out of range", []interface{}{"k", 9}, "out of range"},
		{"non-int list hop", []interface{}{"k", "x"}, "must be an int"},
		{"index into scalar", []interface{}{"d", "a", "deep"}, "cannot index"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ast.At(tt.path...)
			if !errors.Is(err, &Error{Kind: ErrPathNotFound}) {
				t.Fatalf("error = %v, want ErrPathNotFound", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error = %q, want %q", err, tt.message)
			}
		})
	}
}

func TestRoundtrip_Comments(t *testing.T) {
	t.Run("key doc and value trailing", func(t *testing.T) {
		src := "### the port ###\nport = 8080 # tcp\n"
		ast := rtParse(t, src)
		c, err := ast.At("port")
		if err != nil {
			t.Fatalf("At failed: %v", err)
		}
		if doc, ok := c.KeyDocComment(); !ok || doc != "the port" {
			t.Errorf("KeyDocComment = %q, %v, want the port", doc, ok)
		}
		if trail, ok := c.ValueTrailingComment(); !ok || trail != "tcp" {
			t.Errorf("ValueTrailingComment = %q, %v, want tcp", trail, ok)
		}
		if err := c.SetKeyDocComment("listen port"); err != nil {
			t.Fatalf("SetKeyDocComment failed: %v", err)
		}
		if err := c.SetValueTrailingComment("udp"); err != nil {
			t.Fatalf("SetValueTrailingComment failed: %v", err)
		}
		expected := "### listen port ###\nport = 8080 # udp\n"
		if got := ast.Dumps(); got != expected {
			t.Errorf("Dumps = %q, want %q", got, expected)
		}
	})

	t.Run("key trailing comment", func(t *testing.T) {
		ast := rtParse(t, "k = # note\n    1\n")
		c, err := ast.At("k")
		if err != nil {
			t.Fatalf("At failed: %v", err)
		}
		if trail, ok := c.KeyTrailingComment(); !ok || trail != "note" {
			t.Errorf("KeyTrailingComment = %q, %v, want note", trail, ok)
		}
	})

	t.Run("inline value doc comment", func(t *testing.T) {
		ast := rtParse(t, "k = ### speed ### 9\n")
		c, err := ast.At("k")
		if err != nil {
			t.Fatalf("At failed: %v", err)
		}
		if doc, ok := c.ValueDocComment(); !ok || doc != "speed" {
			t.Errorf("ValueDocComment = %q, %v, want speed", doc, ok)
		}
	})

	t.Run("inline opener and closer comments", func(t *testing.T) {
		ast := rtParse(t, "k = { # open\n  a = 1 } # close\n")
		c, err := ast.At("k")
		if err != nil {
			t.Fatalf("At failed: %v", err)
		}
		if s, ok := c.ValueStartTrailingComment(); !ok || s != "open" {
			t.Errorf("ValueStartTrailingComment = %q, %v, want open", s, ok)
		}
		if e, ok := c.ValueEndTrailingComment(); !ok || e != "close" {
			t.Errorf("ValueEndTrailingComment = %q, %v, want close", e, ok)
		}
	})

	t.Run("absent slot", func(t *testing.T) {
		ast := rtParse(t, "k = 1\n")
		c, err := ast.At("k")
		if err != nil {
			t.Fatalf("At failed: %v", err)
		}
		if _, ok := c.KeyDocComment(); ok {
			t.Error("KeyDocComment present, want absent")
		}
		if err := c.SetValueTrailingComment("x"); !errors.Is(err, &Error{Kind: ErrPathNotFound}) {
			t.Errorf("SetValueTrailingComment error = %v, want ErrPathNotFound", err)
		}
	})

	t.Run("line comment cannot span lines", func(t *testing.T) {
		ast := rtParse(t, "k = 1 # old\n")
		c, err := ast.At("k")
		if err != nil {
			t.Fatalf("At failed: %v", err)
		}
		if err := c.SetValueTrailingComment("a\nb"); !errors.Is(err, &Error{Kind: ErrTypeMismatch}) {
			t.Errorf("error = %v, want ErrTypeMismatch", err)
		}
	})
}

func TestRoundtrip_AliasOpaque(t *testing.T) {
	src := "a = (label = x)> {p = 1}\nb = $x\n"
	ast := rtParse(t, src)

	t.Run("path cannot cross alias", func(t *testing.T) {
		_, err := ast.At("b", "p")
		if !errors.Is(err, &Error{Kind: ErrPathNotFound}) {
			t.Fatalf("error = %v, want ErrPathNotFound", err)
		}
		if !strings.Contains(err.Error(), "crosses alias") {
			t.Errorf("error = %q, want alias complaint", err)
		}
	})

	t.Run("alias value not replaceable", func(t *testing.T) {
		err := ast.ReplaceVal([]interface{}{"b"}, 5)
		if !errors.Is(err, &Error{Kind: ErrTypeMismatch}) {
			t.Errorf("error = %v, want ErrTypeMismatch", err)
		}
	})

	t.Run("labeled collection still editable", func(t *testing.T) {
		if err := ast.ReplaceVal([]interface{}{"a", "p"}, 2); err != nil {
			t.Fatalf("ReplaceVal failed: %v", err)
		}
		expected := "a = (label = x)> {p = 2}\nb = $x\n"
		if got := ast.Dumps(); got != expected {
			t.Errorf("Dumps = %q, want %q", got, expected)
		}
	})
}
