// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonathan/video-pipeline/internal/jobs"
	"github.com/jonathan/video-pipeline/internal/media"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if r := []rune(line); len(r) > boxWidth-4 {
			line = string(r[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintJob outputs a job's status record.
func (p *Printer) PrintJob(rec *jobs.Record) {
	if rec == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status:   %s\n", rec.Status))
	sb.WriteString(fmt.Sprintf("Progress: %d%%\n", rec.Progress))
	if rec.Message != "" {
		sb.WriteString(fmt.Sprintf("Message:  %s\n", rec.Message))
	}
	sb.WriteString(fmt.Sprintf("Updated:  %s", rec.UpdatedAt.Format("2006-01-02 15:04:05")))

	p.printBox("JOB "+rec.JobID, sb.String())
}

// PrintSteps outputs step records in pipeline order, marking the active one.
func (p *Printer) PrintSteps(records []*steps.Record) {
	if len(records) == 0 {
		return
	}
	sorted := append([]*steps.Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return steps.Index(sorted[i].Step) < steps.Index(sorted[j].Step)
	})

	var sb strings.Builder
	for i, rec := range sorted {
		marker := " "
		if rec.Active() {
			marker = "▶"
		}
		sb.WriteString(fmt.Sprintf("%s %-11s %s", marker, rec.Step, rec.Status))
		if i < len(sorted)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("STEPS", sb.String())
}

// PrintAssembly outputs an assembly summary with the first dropped segments.
func (p *Printer) PrintAssembly(res *media.AssemblyResult) {
	if res == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Output:   %s\n", res.OutputPath))
	sb.WriteString(fmt.Sprintf("Duration: %.1fs\n", res.Duration))
	sb.WriteString(fmt.Sprintf("Segments: %d ok, %d failed, %d dropped", res.Successful, res.Failed, len(res.Dropped)))

	visuals := make(map[media.Visual]int)
	for _, s := range res.Segments {
		visuals[s.Visual]++
	}
	if len(visuals) > 0 {
		sb.WriteString(fmt.Sprintf("\nVisuals:  %d clip, %d image, %d placeholder",
			visuals[media.VisualClip], visuals[media.VisualImage], visuals[media.VisualPlaceholder]))
	}

	if len(res.Errors) > 0 {
		sb.WriteString("\n")
		count := min(len(res.Errors), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString("\n  " + res.Errors[i].Error())
		}
		if len(res.Errors) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("\n  ... and %d more", len(res.Errors)-maxItemsToShow))
		}
	}

	p.printBox("ASSEMBLY", sb.String())
}

// PrintResult outputs a finished pipeline's step summaries and links.
func (p *Printer) PrintResult(res *pipeline.Result) {
	if res == nil {
		return
	}

	var sb strings.Builder
	for _, step := range steps.Order {
		if s, ok := res.Summaries[step]; ok {
			sb.WriteString(fmt.Sprintf("%-11s %s\n", step, firstLine(s)))
		}
	}
	if res.VideoURL != "" {
		sb.WriteString(fmt.Sprintf("\nVideo:  %s", res.VideoURL))
	}
	if res.UploadURL != "" {
		sb.WriteString(fmt.Sprintf("\nUpload: %s", res.UploadURL))
	}

	p.printBox("PIPELINE COMPLETE", strings.TrimRight(sb.String(), "\n"))
}

// PrintProgress writes one line per progress event.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(e pipeline.ProgressEvent) {
	step := e.Step
	if step == "" {
		step = "-"
	}
	fmt.Fprintf(p.out, "[%3d%%] %-11s %s\n", e.Progress, step, firstLine(e.Message))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
