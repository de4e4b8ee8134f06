// Package render provides output rendering for the teeline CLI.
//
// A TTY defaults to table output and anything else to json; --format
// overrides both. --no-color affects table output only.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/teeline/cli/tui"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil // Let caller decide default
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// Tabular is implemented by views with their own table layout.
type Tabular interface {
	TableRows() (headers []string, rows [][]string)
}

// NewRenderer creates a renderer from CLI context writing to the app's
// writer.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	if c.App != nil && c.App.Writer != nil {
		out = c.App.Writer
	}

	if format == "" {
		if f, ok := out.(*os.File); ok && isTTY(f) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	return &Renderer{
		format:  format,
		noColor: c.Bool("no-color"),
		out:     out,
	}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
	}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Writer returns the output writer.
func (r *Renderer) Writer() io.Writer {
	return r.out
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI shows data in the interactive view for viewType.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data)
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Renderer) renderYAML(data any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	return enc.Encode(data)
}

func (r *Renderer) renderTable(data any) error {
	t, ok := data.(Tabular)
	if !ok {
		var err error
		if t, err = tableOf(data); err != nil {
			return err
		}
	}
	return r.renderTabular(t)
}

// renderTabular writes rows aligned in columns. A nil header row is omitted.
func (r *Renderer) renderTabular(t Tabular) error {
	headers, rows := t.TableRows()
	if len(rows) == 0 {
		fmt.Fprintln(r.out, "(no results)")
		return nil
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if len(headers) > 0 {
		fmt.Fprintln(w, strings.Join(headers, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return nil
}

// table is a Tabular built from an arbitrary value.
type table struct {
	headers []string
	rows    [][]string
}

func (t table) TableRows() ([]string, [][]string) { return t.headers, t.rows }

// tableOf lays data out by its YAML form, which keeps struct field order
// and sorts map keys. A sequence of mappings becomes one row per item under
// the first item's keys; a mapping becomes "key:" / value pairs.
func tableOf(data any) (Tabular, error) {
	b, err := yaml.Marshal(data)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return table{}, nil
	}

	n := doc.Content[0]
	switch n.Kind {
	case yaml.SequenceNode:
		var t table
		for _, item := range n.Content {
			if item.Kind != yaml.MappingNode {
				t.headers = []string{"value"}
				t.rows = append(t.rows, []string{cell(item)})
				continue
			}
			if t.headers == nil {
				for i := 0; i < len(item.Content); i += 2 {
					t.headers = append(t.headers, item.Content[i].Value)
				}
			}
			row := make([]string, len(t.headers))
			for i := 0; i < len(item.Content); i += 2 {
				if j := slices.Index(t.headers, item.Content[i].Value); j >= 0 {
					row[j] = cell(item.Content[i+1])
				}
			}
			t.rows = append(t.rows, row)
		}
		return t, nil
	case yaml.MappingNode:
		var t table
		for i := 0; i < len(n.Content); i += 2 {
			t.rows = append(t.rows, []string{n.Content[i].Value + ":", cell(n.Content[i+1])})
		}
		return t, nil
	default:
		return table{rows: [][]string{{cell(n)}}}, nil
	}
}

// cell renders one value. Nested collections collapse to their size.
func cell(n *yaml.Node) string {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return ""
		}
		return n.Value
	case yaml.SequenceNode:
		if len(n.Content) == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", len(n.Content))
	case yaml.MappingNode:
		if len(n.Content) == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", len(n.Content)/2)
	case yaml.AliasNode:
		return cell(n.Alias)
	default:
		return ""
	}
}

// isTTY returns true if the writer is a TTY.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
