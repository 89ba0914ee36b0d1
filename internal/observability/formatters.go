// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/company-brochure/internal/pipeline"
	"github.com/jonathan/company-brochure/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// clip shortens s to n runes, marking the cut with "...".
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, clip(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintLinkSelection outputs the links chosen for aggregation.
func (p *Printer) PrintLinkSelection(company string, selection *types.LinkSelection) {
	if selection == nil {
		return
	}

	var sb strings.Builder
	if company != "" {
		sb.WriteString(fmt.Sprintf("Company:  %s\n", company))
	}
	sb.WriteString(fmt.Sprintf("Source:   %s\n", selection.Source))
	if selection.Reason != "" {
		sb.WriteString(fmt.Sprintf("Reason:   %s\n", selection.Reason))
	}
	sb.WriteString("\n")

	if len(selection.Selected) == 0 {
		sb.WriteString("No relevant links found\n")
	}
	count := min(len(selection.Selected), maxItemsToShow)
	for i := 0; i < count; i++ {
		link := selection.Selected[i]
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, link.Category))
		sb.WriteString(fmt.Sprintf("   %s\n", link.URL))
	}
	if len(selection.Selected) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(selection.Selected)-maxItemsToShow))
	}

	p.printBox("SUGGESTED LINKS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintOutcome outputs a summary of a finished session.
func (p *Printer) PrintOutcome(outcome *pipeline.Outcome) {
	if outcome == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status:   %s\n", outcome.Status))
	if a := outcome.Artifact; a != nil {
		sb.WriteString(fmt.Sprintf("Session:  %s\n", a.SessionID))
		sb.WriteString(fmt.Sprintf("Company:  %s\n", a.Request.CompanyName))
		sb.WriteString(fmt.Sprintf("Model:    %s\n", a.Request.Model.DisplayName()))
		sb.WriteString(fmt.Sprintf("Tone:     %s\n", a.Request.Tone))
		sb.WriteString(fmt.Sprintf("Length:   %d chars\n", utf8.RuneCountInString(a.Text)))
		if a.Partial {
			sb.WriteString("Partial:  yes\n")
		}
	}
	if f := outcome.Err; f != nil {
		sb.WriteString(fmt.Sprintf("\n⚠ %s during %s\n", f.Kind, f.Stage))
		if f.Err != nil {
			sb.WriteString(fmt.Sprintf("  %s\n", f.Err))
		}
	}

	title := "✅ BROCHURE COMPLETE"
	switch outcome.Status {
	case pipeline.StateFailed:
		title = "❌ BROCHURE FAILED"
	case pipeline.StateCancelled:
		title = "⏹ BROCHURE CANCELLED"
	}
	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}
