// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package report

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/herbgrind/shadowvm/internal/hglog"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// WriteReport renders records to path in the format r's configuration
// selects, matching writeReport's two branches (human-readable paragraphs
// vs. one S-expression per line). A failed file open is a non-fatal
// diagnostic (spec §7: "Report file open failure ... run continues but no
// file is written"); an empty path writes to stdout instead, since §6
// frames the report as the one artifact a run must still be able to
// produce even with no configured destination.
func (r *Reporter) WriteReport(path string, records []Record) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			hglog.Error("report: could not open output file, continuing without one", "path", path, "err", err)
			return nil
		}
		defer f.Close()
		w = f
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No errors found.")
		return nil
	}

	if r.cfg.HumanReadable {
		return r.writeHumanReadable(w, records)
	}
	return writeSExpr(w, records)
}

// writeHumanReadable prints a tabular overview of the top sites followed by
// one detailed paragraph per site (writeReport's "%s in %s at %s:%u"
// paragraph), colorized when the destination is a real terminal.
func (r *Reporter) writeHumanReadable(w io.Writer, records []Record) error {
	runID := uuid.New()
	fmt.Fprintf(w, "herbgrind report %s\n\n", runID)

	out := w
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		out = colorable.NewColorable(f)
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Op", "Function", "Site", "Avg Error", "Max Error", "Calls"})
	p := message.NewPrinter(language.English)
	for _, rec := range records {
		table.Append([]string{
			rec.PlainName,
			rec.Function,
			fmt.Sprintf("%s:%d", rec.Filename, rec.Line),
			fmt.Sprintf("%.2f", rec.AvgError),
			fmt.Sprintf("%.2f", rec.MaxError),
			p.Sprintf("%d", rec.NumCalls),
		})
	}
	table.Render()
	fmt.Fprintln(out)

	bold := color.New(color.Bold)
	for _, rec := range records {
		if rec.Expr != "" {
			fmt.Fprintln(out, rec.Expr)
		}
		header := fmt.Sprintf("%s in %s at %s:%d (address 0x%x)",
			rec.PlainName, rec.Function, rec.Filename, rec.Line, rec.InstrAddr)
		if useColor {
			bold.Fprintln(out, header)
		} else {
			fmt.Fprintln(out, header)
		}
		fmt.Fprintf(out, "%.4f bits average error\n", rec.AvgError)
		fmt.Fprintf(out, "%.4f bits max error\n", rec.MaxError)
		p.Fprintf(out, "Aggregated over %d instances\n\n", rec.NumCalls)
	}
	return nil
}

// writeSExpr prints one machine-readable record per line, per spec §6's
// S-expression form.
func writeSExpr(w io.Writer, records []Record) error {
	for _, rec := range records {
		parts := ""
		if rec.Expr != "" {
			parts += fmt.Sprintf("(expr %s) ", rec.Expr)
		}
		fmt.Fprintf(w, "(%s(plain-name %q) (function %q) (filename %q) (line-num %d) "+
			"(instr-addr %x) (avg-error %f) (max-error %f) (num-calls %d))\n",
			parts, rec.PlainName, rec.Function, rec.Filename, rec.Line,
			rec.InstrAddr, rec.AvgError, rec.MaxError, rec.NumCalls)
	}
	return nil
}
