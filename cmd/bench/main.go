// bench - BespON size benchmark runner
//
// Compares BespON documents against minified JSON:
//   - Bytes in canonical indentation style
//   - Bytes in compact inline style
//   - zstd-compressed bytes
//
// Output: CSV and a summary table
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/pflag"

	"github.com/Neumenon/bespon/bespon"
)

type CaseResult struct {
	Name        string
	SourceBytes int
	CanonBytes  int
	InlineBytes int
	JSONBytes   int
	ZstdBytes   int
	BytesSaved  int
	BytesPct    float64
}

func main() {
	var (
		csvPath string
		dir     string
	)
	pflag.StringVar(&csvPath, "csv", "bench_results.csv", "CSV output path (empty to skip)")
	pflag.StringVar(&dir, "dir", "testdata", "directory of .bespon documents")
	pflag.Parse()

	files := pflag.Args()
	if len(files) == 0 {
		var err error
		files, err = filepath.Glob(filepath.Join(dir, "*.bespon"))
		if err != nil || len(files) == 0 {
			fmt.Fprintf(os.Stderr, "No .bespon documents under %s\n", dir)
			os.Exit(1)
		}
		sort.Strings(files)
	}

	fmt.Fprintf(os.Stderr, "BespON Benchmark Runner\n")
	fmt.Fprintf(os.Stderr, "=======================\n")
	fmt.Fprintf(os.Stderr, "Corpus: %d documents\n\n", len(files))

	var results []CaseResult
	var totalJSON, totalCanon int
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skip %s: %v\n", path, err)
			continue
		}
		r, err := measure(filepath.Base(path), data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skip %s: %v\n", path, err)
			continue
		}
		results = append(results, r)
		totalJSON += r.JSONBytes
		totalCanon += r.CanonBytes
	}
	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "No documents measured")
		os.Exit(1)
	}

	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err == nil {
			writeCSV(f, results)
			f.Close()
			fmt.Fprintf(os.Stderr, "CSV written to: %s\n", csvPath)
		}
	}

	fmt.Printf("\n=== SUMMARY ===\n")
	fmt.Printf("Documents:    %d\n", len(results))
	fmt.Printf("JSON total:   %d bytes\n", totalJSON)
	fmt.Printf("BespON total: %d bytes (canonical)\n", totalCanon)
	saved := totalJSON - totalCanon
	fmt.Printf("Bytes saved:  %d (%.1f%%)\n", saved, pct(saved, totalJSON))

	fmt.Printf("\n%-28s %10s %10s %10s %10s %8s\n", "case", "source", "canon", "inline", "json", "saved")
	for _, r := range results {
		fmt.Printf("%-28s %10d %10d %10d %10d %7.1f%%\n",
			truncateName(r.Name, 28), r.SourceBytes, r.CanonBytes, r.InlineBytes, r.JSONBytes, r.BytesPct)
	}
}

func measure(name string, data []byte) (CaseResult, error) {
	opts := bespon.DefaultLoadOptions()
	opts.ExtendedTypes = true
	v, err := bespon.ParseBytes(data, opts)
	if err != nil {
		return CaseResult{}, err
	}

	canon, err := bespon.Serialize(v, nil)
	if err != nil {
		return CaseResult{}, err
	}

	inlineOpts := bespon.DefaultDumpOptions()
	inlineOpts.InlineDepth = 1
	inlineOpts.CompactInline = true
	inlineOpts.ExtendedTypes = true
	inline, err := bespon.Serialize(v, inlineOpts)
	if err != nil {
		return CaseResult{}, err
	}

	native, err := toGo(v, make(map[*bespon.Value]bool))
	if err != nil {
		return CaseResult{}, err
	}
	jsonMin, err := json.Marshal(native)
	if err != nil {
		return CaseResult{}, err
	}

	compressed, err := zstdSize(data)
	if err != nil {
		return CaseResult{}, err
	}

	saved := len(jsonMin) - len(canon)
	return CaseResult{
		Name:        name,
		SourceBytes: len(data),
		CanonBytes:  len(canon),
		InlineBytes: len(inline),
		JSONBytes:   len(jsonMin),
		ZstdBytes:   compressed,
		BytesSaved:  saved,
		BytesPct:    pct(saved, len(jsonMin)),
	}, nil
}

func zstdSize(data []byte) (int, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return 0, err
	}
	out := enc.EncodeAll(data, nil)
	enc.Close()
	return len(out), nil
}

func pct(saved, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(saved) / float64(total) * 100.0
}

func writeCSV(w io.Writer, results []CaseResult) {
	fmt.Fprintln(w, "name,source_bytes,canon_bytes,inline_bytes,json_bytes,zstd_bytes,bytes_saved,bytes_pct")
	for _, r := range results {
		fmt.Fprintf(w, "%s,%d,%d,%d,%d,%d,%d,%.1f\n",
			r.Name, r.SourceBytes, r.CanonBytes, r.InlineBytes, r.JSONBytes, r.ZstdBytes, r.BytesSaved, r.BytesPct)
	}
}

func truncateName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// toGo flattens a value tree into plain Go data for JSON encoding. Keys are
// stringified; complex and rational values become their literal text.
func toGo(v *bespon.Value, onStack map[*bespon.Value]bool) (interface{}, error) {
	if onStack[v] {
		return nil, fmt.Errorf("circular reference cannot be converted")
	}
	switch v.Kind() {
	case bespon.KindNone:
		return nil, nil
	case bespon.KindBool:
		return v.AsBool()
	case bespon.KindInt:
		return v.AsInt()
	case bespon.KindFloat:
		return v.AsFloat()
	case bespon.KindStr:
		return v.AsStr()
	case bespon.KindBytes:
		return v.AsBytes()
	case bespon.KindComplex:
		c, err := v.AsComplex()
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%g%+gi", real(c), imag(c)), nil
	case bespon.KindRational:
		r, err := v.AsRational()
		if err != nil {
			return nil, err
		}
		return r.RatString(), nil
	case bespon.KindDict:
		entries, err := v.AsDict()
		if err != nil {
			return nil, err
		}
		onStack[v] = true
		defer delete(onStack, v)
		m := make(map[string]interface{}, len(entries))
		for _, e := range entries {
			key, err := keyText(e.Key)
			if err != nil {
				return nil, err
			}
			val, err := toGo(e.Val, onStack)
			if err != nil {
				return nil, err
			}
			m[key] = val
		}
		return m, nil
	case bespon.KindList:
		items, err := v.AsList()
		if err != nil {
			return nil, err
		}
		onStack[v] = true
		defer delete(onStack, v)
		out := make([]interface{}, len(items))
		for i, item := range items {
			val, err := toGo(item, onStack)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot convert %s value", v.Kind())
}

func keyText(k *bespon.Value) (string, error) {
	switch k.Kind() {
	case bespon.KindStr:
		return k.AsStr()
	case bespon.KindBool:
		b, err := k.AsBool()
		if err != nil {
			return "", err
		}
		if b {
			return "true", nil
		}
		return "false", nil
	case bespon.KindInt:
		n, err := k.AsInt()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", n), nil
	case bespon.KindFloat:
		f, err := k.AsFloat()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%g", f), nil
	case bespon.KindNone:
		return "none", nil
	}
	return "", fmt.Errorf("%s key has no text form", k.Kind())
}
