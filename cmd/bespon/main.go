// bespon - BespON document tool
//
// Usage:
//
//	bespon validate [file...]          Parse documents and report errors
//	bespon convert --to=json [file]    Convert a document to JSON or YAML
//	bespon fmt [file]                  Re-emit a document in canonical form
//	bespon version                     Print version info
//
// If no file is given, reads from stdin.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Neumenon/bespon/bespon"
)

const version = "0.3.0"

var log = logrus.New()

var (
	flagVerbose       bool
	flagExtendedTypes bool
	flagCircularRefs  bool
	flagNoIntegers    bool
	flagMaxDepth      int
)

func main() {
	root := &cobra.Command{
		Use:           "bespon",
		Short:         "BespON document tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetOutput(os.Stderr)
			log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
			if flagVerbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}
	pf := root.PersistentFlags()
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&flagExtendedTypes, "extended-types", false, "enable set, odict, complex, and rational")
	pf.BoolVar(&flagCircularRefs, "circular-refs", false, "permit forward references and alias cycles")
	pf.BoolVar(&flagNoIntegers, "no-integers", false, "load every number as a float")
	pf.IntVar(&flagMaxDepth, "max-depth", 100, "maximum nesting depth")

	root.AddCommand(validateCmd(), convertCmd(), fmtCmd(), versionCmd())
	if err := root.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func loadOptions() *bespon.LoadOptions {
	opts := bespon.DefaultLoadOptions()
	opts.ExtendedTypes = flagExtendedTypes
	opts.CircularReferences = flagCircularRefs
	opts.Integers = !flagNoIntegers
	opts.MaxNestingDepth = flagMaxDepth
	return opts
}

func readInput(args []string) ([]byte, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		return data, "<stdin>", err
	}
	data, err := os.ReadFile(args[0])
	return data, args[0], err
}

// reportError prints a decoder error with its snippet highlighted.
func reportError(err error) {
	var be *bespon.Error
	msg := err.Error()
	if e, ok := err.(*bespon.Error); ok {
		be = e
	}
	if be == nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("error:"), msg)
		return
	}
	head, snippet, found := strings.Cut(msg, "\n")
	fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("error:"), head)
	if found {
		fmt.Fprintln(os.Stderr, color.YellowString(snippet))
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file...]",
		Short: "Parse documents and report errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"-"}
			}
			failed := 0
			for _, name := range args {
				data, label, err := readInput([]string{name})
				if err != nil {
					return err
				}
				if _, err := bespon.ParseBytes(data, loadOptions()); err != nil {
					failed++
					fmt.Fprintf(os.Stderr, "%s: ", label)
					reportError(err)
					continue
				}
				log.Debugf("%s: ok", label)
				fmt.Printf("%s: %s\n", label, color.GreenString("ok"))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(args))
			}
			return nil
		},
	}
}

func convertCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "convert [file]",
		Short: "Convert a document to JSON or YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, label, err := readInput(args)
			if err != nil {
				return err
			}
			v, err := bespon.ParseBytes(data, loadOptions())
			if err != nil {
				return err
			}
			log.Debugf("%s: parsed", label)
			native, err := toGo(v, make(map[*bespon.Value]bool))
			if err != nil {
				return err
			}
			switch to {
			case "json":
				out, err := json.MarshalIndent(native, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			case "yaml":
				out, err := yaml.Marshal(native)
				if err != nil {
					return err
				}
				fmt.Print(string(out))
			default:
				return fmt.Errorf("unknown target format %q (json, yaml)", to)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "json", "target format: json or yaml")
	return cmd
}

func fmtCmd() *cobra.Command {
	var (
		inlineDepth    int
		indent         string
		compact        bool
		trailingCommas bool
		hexFloats      bool
		compress       bool
		out            string
	)
	cmd := &cobra.Command{
		Use:   "fmt [file]",
		Short: "Re-emit a document in canonical form",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, label, err := readInput(args)
			if err != nil {
				return err
			}
			v, err := bespon.ParseBytes(data, loadOptions())
			if err != nil {
				return err
			}
			opts := bespon.DefaultDumpOptions()
			opts.InlineDepth = inlineDepth
			opts.NestingIndent = indent
			opts.CompactInline = compact
			opts.TrailingCommas = trailingCommas
			opts.HexFloats = hexFloats
			opts.ExtendedTypes = flagExtendedTypes
			opts.CircularReferences = flagCircularRefs
			opts.Aliases = flagCircularRefs
			opts.Integers = !flagNoIntegers
			opts.MaxNestingDepth = flagMaxDepth
			text, err := bespon.Serialize(v, opts)
			if err != nil {
				return err
			}
			log.Debugf("%s: %d bytes emitted", label, len(text))

			var w io.Writer = os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if compress {
				enc, err := zstd.NewWriter(w)
				if err != nil {
					return err
				}
				if _, err := enc.Write([]byte(text)); err != nil {
					enc.Close()
					return err
				}
				return enc.Close()
			}
			_, err = io.WriteString(w, text)
			return err
		},
	}
	cmd.Flags().IntVar(&inlineDepth, "inline-depth", 0, "nesting depth at which to switch to inline style (0 = never)")
	cmd.Flags().StringVar(&indent, "indent", "    ", "indent unit")
	cmd.Flags().BoolVar(&compact, "compact", false, "compact inline collections")
	cmd.Flags().BoolVar(&trailingCommas, "trailing-commas", false, "emit trailing commas in inline collections")
	cmd.Flags().BoolVar(&hexFloats, "hex-floats", false, "emit floats in hex form")
	cmd.Flags().BoolVar(&compress, "compress", false, "zstd-compress the output")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write output to a file instead of stdout")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bespon %s\n", version)
		},
	}
}

// toGo converts a value tree into plain Go data for JSON/YAML encoding.
// Dict keys are stringified; complex and rational values become their
// literal text. Cycles cannot be represented in either target format.
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
