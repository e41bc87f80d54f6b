package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/nao1215/imgguard/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with color-coded verdicts
// and clear section formatting.
//
// Design decision: Color is off by default so output piped to files or
// other tools stays plain. The CLI enables it for terminals.
type SimpleWriter struct {
	baseWriter

	// showSafe controls whether safe images are listed individually.
	showSafe bool

	// verbose enables additional detail in the output.
	verbose bool

	safe   *color.Color
	unsafe *color.Color
	failed *color.Color
	high   *color.Color
	medium *color.Color
	low    *color.Color
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowSafe configures the writer to list safe images.
func WithShowSafe(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showSafe = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithColor enables ANSI colors.
func WithColor(enabled bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		for _, c := range w.colors() {
			if enabled {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		safe:       color.New(color.FgGreen),
		unsafe:     color.New(color.FgRed, color.Bold),
		failed:     color.New(color.FgYellow),
		high:       color.New(color.FgRed),
		medium:     color.New(color.FgYellow),
		low:        color.New(color.FgBlue),
	}
	for _, c := range w.colors() {
		c.DisableColor()
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

func (w *SimpleWriter) colors() []*color.Color {
	return []*color.Color{w.safe, w.unsafe, w.failed, w.high, w.medium, w.low}
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.BatchReport) (int, error) {
	var sb strings.Builder
	summary := report.Summary()

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, summary)
	w.writeImages(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with batch information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.BatchReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          IMGGUARD REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Scan Date: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Images:    %d\n", len(report.Images))
	sb.WriteString("\n")
}

// writeSummary writes the verdict and severity summary section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, summary model.BatchSummary) {
	writeSection(sb, "SUMMARY")

	fmt.Fprintf(sb, "  %s %d\n", w.safe.Sprint("SAFE:    "), summary.Safe)
	fmt.Fprintf(sb, "  %s %d\n", w.unsafe.Sprint("UNSAFE:  "), summary.Unsafe)
	fmt.Fprintf(sb, "  %s %d\n", w.failed.Sprint("FAILED:  "), summary.Failed)
	if summary.Partial > 0 {
		fmt.Fprintf(sb, "  PARTIAL:  %d\n", summary.Partial)
	}
	sb.WriteString("\n")

	fmt.Fprintf(sb, "  HIGH:     %d\n", summary.High)
	fmt.Fprintf(sb, "  MEDIUM:   %d\n", summary.Medium)
	fmt.Fprintf(sb, "  LOW:      %d\n", summary.Low)
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  TOTAL:    %d threats\n", summary.Threats())
	sb.WriteString("\n")
}

// writeImages lists unsafe and failed images, and safe ones when requested.
func (w *SimpleWriter) writeImages(sb *strings.Builder, report *model.BatchReport) {
	listed := 0
	for _, img := range report.Images {
		if img.Status() != model.StatusSafe || w.showSafe {
			listed++
		}
	}
	if listed == 0 {
		return
	}

	writeSection(sb, "IMAGES")
	for _, img := range report.Images {
		switch img.Status() {
		case model.StatusError:
			fmt.Fprintf(sb, "[%s] %s\n", w.failed.Sprint("ERROR"), img.URL)
			fmt.Fprintf(sb, "  %s\n\n", img.Error)
		case model.StatusUnsafe:
			w.writeUnsafe(sb, img)
		case model.StatusSafe:
			if w.showSafe {
				fmt.Fprintf(sb, "[%s] %s\n\n", w.safe.Sprint("SAFE"), img.URL)
			}
		}
	}
}

// writeUnsafe writes the threats of one unsafe image.
func (w *SimpleWriter) writeUnsafe(sb *strings.Builder, img model.ImageReport) {
	fmt.Fprintf(sb, "[%s] %s\n", w.unsafe.Sprint("UNSAFE"), img.URL)
	fmt.Fprintf(sb, "  Confidence: %.1f\n", img.Result.Confidence)
	if img.Result.Partial {
		sb.WriteString("  Partial:    deadline expired before every scan finished\n")
	}
	if w.verbose {
		fmt.Fprintf(sb, "  Duration:   %d ms\n", img.DurationMS)
	}

	for _, t := range img.Result.Threats {
		fmt.Fprintf(sb, "  %s %s: %s\n", w.severityIndicator(t.Severity), threatTypeTitle(t.Type), t.Description)
	}
	sb.WriteString("\n")
}

// severityIndicator returns a visual indicator for the severity level.
func (w *SimpleWriter) severityIndicator(severity model.Severity) string {
	switch severity {
	case model.SeverityHigh:
		return w.high.Sprint("!!!")
	case model.SeverityMedium:
		return w.medium.Sprint("!! ")
	case model.SeverityLow:
		return w.low.Sprint("!  ")
	default:
		return "?  "
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by imgguard\n")
	sb.WriteString("https://github.com/nao1215/imgguard\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}
