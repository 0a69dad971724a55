package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
)

// WriteReport renders the final report to w in the requested format.
func WriteReport(w io.Writer, format dispatch.OutputFormat, report dispatch.Report) error {
	switch format {
	case dispatch.OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode JSON report: %w", err)
		}
		return nil
	default:
		if len(report.Bindings) > 0 {
			if _, err := fmt.Fprintln(w, renderBindings(report.Bindings)); err != nil {
				return err
			}
		}
		return report.WriteText(w)
	}
}

func renderBindings(results []dispatch.BindingResult) string {
	tw := newTable("Converter", "Files", "Rounds", "Threads", "Out of memory", "Cancelled")
	for _, r := range results {
		threads := make([]string, len(r.ThreadCounts))
		for i, n := range r.ThreadCounts {
			threads[i] = strconv.Itoa(n)
		}
		name := r.Converter
		if r.InitError != "" {
			name += " (init failed)"
		}
		tw.AppendRow(table.Row{name, r.Files, r.Rounds, strings.Join(threads, " → "), len(r.PermanentOOM), len(r.Cancelled)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return tw.Render()
}

// RenderConverters lists the converters of reg with their extensions.
func RenderConverters(reg *dispatch.Registry) string {
	tw := newTable("Converter", "Extensions", "Multithreaded")
	for _, c := range reg.Converters() {
		exts := c.Extensions()
		list := strings.Join(exts, " ")
		if len(exts) == 1 && exts[0] == dispatch.WildcardExtension {
			list = "(all)"
		}
		tw.AppendRow(table.Row{c.Name(), list, c.SupportsMultithreading()})
	}
	if ext := reg.OverwriteExtension(); ext != "" {
		tw.AppendFooter(table.Row{"", "every file looked up as ." + ext, ""})
	}
	return tw.Render()
}

func newTable(headers ...string) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	return tw
}
