// Package report renders history-matching reports for the terminal and for
// downstream tools.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/dyluth/nroy/pkg/ledger"
)

// OutputFormat specifies how a report is written.
type OutputFormat string

const (
	// FormatTable prints a summary and a table of points
	FormatTable OutputFormat = "table"

	// FormatMarkdown prints the same table as GitHub-flavoured Markdown
	FormatMarkdown OutputFormat = "markdown"

	// FormatJSONL prints one JSON object per point, ideal for jq
	FormatJSONL OutputFormat = "jsonl"

	// FormatJSON prints the complete report as pretty-printed JSON
	FormatJSON OutputFormat = "json"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case FormatTable, FormatMarkdown, FormatJSONL, FormatJSON:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (must be 'table', 'markdown', 'jsonl' or 'json')", s)
	}
}

// Options select which points are rendered.
type Options struct {
	// All includes ruled-out points as well as NROY points.
	All bool
	// Limit caps the number of table rows (0 = unlimited). JSON output is
	// never truncated.
	Limit int
}

// Point is one query point of a report.
type Point struct {
	Index          int                `json:"index"`
	Parameters     map[string]float64 `json:"parameters"`
	Mean           float64            `json:"mean"`
	Variance       float64            `json:"variance"`
	Implausibility ledger.Float       `json:"implausibility"`
	NROY           bool               `json:"nroy"`

	values []float64
}

// Points returns the NROY points of r, or every query point when all is set,
// in query order.
func Points(r *ledger.Report, all bool) []Point {
	kept := make(map[int]bool, len(r.NROY))
	for _, i := range r.NROY {
		kept[i] = true
	}

	var out []Point
	for i, q := range r.QueryPoints {
		if !all && !kept[i] {
			continue
		}
		params := make(map[string]float64, len(q))
		for d, v := range q {
			params[parameterName(r, d)] = v
		}
		out = append(out, Point{
			Index:          i,
			Parameters:     params,
			Mean:           r.Predictions[i].Mean,
			Variance:       r.Predictions[i].Variance,
			Implausibility: r.Implausibility[i],
			NROY:           kept[i],
			values:         q,
		})
	}
	return out
}

// Write renders r in the given format.
func Write(w io.Writer, r *ledger.Report, format OutputFormat, opts Options) error {
	switch format {
	case FormatTable, "":
		return FormatTableTo(w, r, opts, false)
	case FormatMarkdown:
		return FormatTableTo(w, r, opts, true)
	case FormatJSONL:
		return FormatJSONLTo(w, Points(r, opts.All))
	case FormatJSON:
		return FormatJSONTo(w, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// FormatTableTo writes a summary of r followed by a table of its points.
func FormatTableTo(w io.Writer, r *ledger.Report, opts Options, markdown bool) error {
	fmt.Fprintf(w, "Campaign '%s' (analysed %s)\n\n", r.Campaign, formatTimestamp(r.CreatedAtMs))
	fmt.Fprintf(w, "  Observed:         %s", formatFloat(r.Observed))
	if r.Reference != nil {
		fmt.Fprintf(w, " (simulated at %s)", formatPoint(r.Reference.Point))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Threshold:        %s\n", formatFloat(r.Threshold))
	fmt.Fprintf(w, "  Training points:  %d", r.TrainingSize)
	if r.FailedPoints > 0 {
		fmt.Fprintf(w, " (%d failed)", r.FailedPoints)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Length scales:    %s\n", formatPoint(r.Hyperparameters.LengthScales))
	fmt.Fprintf(w, "  Process variance: %s\n", formatFloat(r.Hyperparameters.ProcessVariance))
	fmt.Fprintf(w, "  NROY:             %d of %d query points (%.1f%%)\n\n",
		len(r.NROY), len(r.QueryPoints), percent(len(r.NROY), len(r.QueryPoints)))

	points := Points(r, opts.All)
	if len(points) == 0 {
		fmt.Fprintln(w, "No points found")
		return nil
	}

	dim := 0
	if len(r.QueryPoints) > 0 {
		dim = len(r.QueryPoints[0])
	}

	tw := table.NewWriter()
	if !markdown {
		tw.SetStyle(table.StyleLight)
	}

	header := table.Row{"#"}
	for d := 0; d < dim; d++ {
		header = append(header, parameterName(r, d))
	}
	header = append(header, "MEAN", "VARIANCE", "IMPLAUSIBILITY")
	if opts.All {
		header = append(header, "NROY")
	}
	tw.AppendHeader(header)

	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignRight}}
	for c := 2; c <= len(header); c++ {
		configs = append(configs, table.ColumnConfig{Number: c, Align: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)

	shown := points
	if opts.Limit > 0 && len(shown) > opts.Limit {
		shown = shown[:opts.Limit]
	}
	for _, p := range shown {
		row := table.Row{p.Index}
		for _, v := range p.values {
			row = append(row, formatFloat(v))
		}
		row = append(row, formatFloat(p.Mean), formatFloat(p.Variance), formatFloat(float64(p.Implausibility)))
		if opts.All {
			row = append(row, formatBool(p.NROY))
		}
		tw.AppendRow(row)
	}

	if markdown {
		fmt.Fprintln(w, tw.RenderMarkdown())
	} else {
		fmt.Fprintln(w, tw.Render())
	}

	if len(shown) < len(points) {
		fmt.Fprintf(w, "\n... %d more (use --limit 0 to show all)\n", len(points)-len(shown))
	}

	countMsg := "point"
	if len(points) != 1 {
		countMsg = "points"
	}
	fmt.Fprintf(w, "\n%d %s listed\n", len(points), countMsg)
	return nil
}

// FormatJSONLTo writes points as line-delimited JSON.
func FormatJSONLTo(w io.Writer, points []Point) error {
	for _, p := range points {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal point to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatJSONTo writes the complete report as pretty-printed JSON.
func FormatJSONTo(w io.Writer, r *ledger.Report) error {
	return writeIndented(w, r)
}

// TrainingData is the exported training set: parallel arrays of inputs and
// simulator outputs.
type TrainingData struct {
	Parameters []string    `json:"parameters,omitempty"`
	Inputs     [][]float64 `json:"inputs"`
	Outputs    []float64   `json:"outputs"`
}

// FormatTrainingSet writes ts as TrainingData JSON.
func FormatTrainingSet(w io.Writer, names []string, ts *ledger.TrainingSet) error {
	return writeIndented(w, TrainingData{
		Parameters: names,
		Inputs:     nonNil2(ts.Inputs),
		Outputs:    nonNil(ts.Outputs),
	})
}

// FormatFailuresTo writes failure records as line-delimited JSON.
func FormatFailuresTo(w io.Writer, failures []*ledger.Failure) error {
	for _, f := range failures {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("failed to marshal failure to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

func writeIndented(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %T to JSON: %w", v, err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	// Add newline for clean output
	fmt.Fprintln(w)
	return nil
}

func parameterName(r *ledger.Report, d int) string {
	if d < len(r.ParameterNames) && r.ParameterNames[d] != "" {
		return r.ParameterNames[d]
	}
	return "x" + strconv.Itoa(d)
}

// formatFloat renders v with up to 6 significant digits. Infinities print
// as "+Inf" and "-Inf".
func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func formatPoint(p []float64) string {
	if len(p) == 0 {
		return "-"
	}
	s := "("
	for i, v := range p {
		if i > 0 {
			s += ", "
		}
		s += formatFloat(v)
	}
	return s + ")"
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

// formatTimestamp formats Unix timestamp in milliseconds to human-readable time.
// Shows relative time like "2m ago", "1h ago", etc.
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := time.Since(time.UnixMilli(timestampMs))

	if diff < time.Minute {
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	} else if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
}

func nonNil(xs []float64) []float64 {
	if xs == nil {
		return []float64{}
	}
	return xs
}

func nonNil2(xs [][]float64) [][]float64 {
	if xs == nil {
		return [][]float64{}
	}
	return xs
}
