package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/imgguard/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.BatchReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := report.Summary()

	w.writeHeader(md, report, summary)
	w.writeSummary(md, summary)
	w.writeImages(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with batch information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.BatchReport, summary model.BatchSummary) {
	md.H1("imgguard Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Scan Date", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Images", strconv.Itoa(summary.Total)},
			{"Safe", strconv.Itoa(summary.Safe)},
			{"Unsafe", strconv.Itoa(summary.Unsafe)},
			{"Failed", strconv.Itoa(summary.Failed)},
		},
	})
	md.PlainText("")
}

// writeSummary writes the severity summary section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, summary model.BatchSummary) {
	md.H2("Severity Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Count"},
		Rows: [][]string{
			{"🔴 High", strconv.Itoa(summary.High)},
			{"🟡 Medium", strconv.Itoa(summary.Medium)},
			{"🔵 Low", strconv.Itoa(summary.Low)},
			{"**Total**", "**" + strconv.Itoa(summary.Threats()) + "**"},
		},
	})
	md.PlainText("")

	if summary.Threats() > 0 {
		w.writePieChart(md, summary)
	}
	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart for severity distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary model.BatchSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Threat Severity Distribution"),
		piechart.WithShowData(true),
	)

	counts := map[model.Severity]int{
		model.SeverityHigh:   summary.High,
		model.SeverityMedium: summary.Medium,
		model.SeverityLow:    summary.Low,
	}
	for _, sev := range severitiesDescending {
		if n := counts[sev]; n > 0 {
			chart.LabelAndIntValue(titleCase(sev.String()), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on severity counts.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary model.BatchSummary) {
	switch {
	case summary.High > 0:
		md.Cautionf(
			"High severity threats detected! %d image(s) should not be served.",
			summary.Unsafe,
		)
	case summary.Medium > 0:
		md.Warningf(
			"Suspicious content found. %d medium severity threat(s) should be reviewed.",
			summary.Medium,
		)
	case summary.Threats() > 0:
		md.Note("Only low severity threats detected.")
	case summary.Failed > 0:
		md.Importantf("%d image(s) could not be analyzed.", summary.Failed)
	default:
		md.Tip("No threats detected.")
	}
	md.PlainText("")
}

// writeImages writes one section per image.
func (w *MarkdownWriter) writeImages(md *markdown.Markdown, report *model.BatchReport) {
	md.H2("Images")
	md.PlainText("")

	if len(report.Images) == 0 {
		md.PlainText("No images analyzed.")
		md.PlainText("")
		return
	}

	for _, img := range report.Images {
		md.H3("`" + truncateString(img.URL, 80) + "`")
		md.PlainText("")
		w.writeImage(md, img)
	}
}

// writeImage writes the verdict and threats of one image.
func (w *MarkdownWriter) writeImage(md *markdown.Markdown, img model.ImageReport) {
	if img.Result == nil {
		md.PlainText("❌ Error - " + img.Error)
		md.PlainText("")
		return
	}

	status := "✅ Safe"
	if !img.Result.IsSafe {
		status = "⚠️ Unsafe"
	}
	if img.Result.Partial {
		status += " (partial results)"
	}
	md.BulletList(
		"Status: "+status,
		fmt.Sprintf("Confidence: %.1f", img.Result.Confidence),
		fmt.Sprintf("Duration: %d ms", img.DurationMS),
	)
	md.PlainText("")

	for _, threatType := range model.ThreatTypes {
		threats := img.Result.ThreatsByType(threatType)
		if len(threats) == 0 {
			continue
		}

		md.H4(threatTypeTitle(threatType))
		md.PlainText("")

		rows := make([][]string, len(threats))
		for i, t := range threats {
			rows[i] = []string{t.Severity.String(), truncateString(t.Description, 100)}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Severity", "Description"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [imgguard](https://github.com/nao1215/imgguard)*")
}
