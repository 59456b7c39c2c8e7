package report

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"pmuplace/domain/placement"
	"pmuplace/internal/errors"
	"pmuplace/ports"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Markdown renders a run summary with its full trace as a markdown document
func Markdown(run *ports.StoredRun) []byte {
	var b bytes.Buffer
	info := run.Info
	cfg := info.Config

	fmt.Fprintf(&b, "# Placement run %s\n\n", info.Dataset)
	fmt.Fprintf(&b, "| Setting | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Run | `%s` |\n", info.ID)
	fmt.Fprintf(&b, "| Target | %s |\n", cfg.TargetVariable)
	fmt.Fprintf(&b, "| Degree | %d |\n", cfg.PolynomialDegree)
	fmt.Fprintf(&b, "| Max placements | %d (limit %d) |\n", cfg.MaxPlacements, info.HeaderLength)
	fmt.Fprintf(&b, "| Parsimonious | %t |\n", cfg.Parsimonious)
	fmt.Fprintf(&b, "| Candidates | %d |\n", info.CandidateSize)
	if len(cfg.ExcludedVariables) > 0 {
		fmt.Fprintf(&b, "| Excluded | %s |\n", joinVariables(cfg.ExcludedVariables))
	}
	if !info.DatasetHash.IsEmpty() {
		fmt.Fprintf(&b, "| Dataset hash | `%s` |\n", info.DatasetHash)
	}
	b.WriteString("\n")

	if best, ok := run.Trace.Best(); ok {
		fmt.Fprintf(&b, "## Best state\n\n**%s** with R² = %.6f\n\n", joinVariables(best.Placement.Variables), best.Placement.Score)
		if best.Fit.Formula != "" {
			fmt.Fprintf(&b, "`%s`\n\n", best.Fit.Formula)
		}
	}

	fmt.Fprintf(&b, "## Accepted states (%d)\n\n", len(run.Trace))
	b.WriteString("| # | Step | Phase | Move | Res^2 | Placement |\n|---|---|---|---|---|---|\n")
	for i, e := range run.Trace {
		fmt.Fprintf(&b, "| %d | %d | %s | %s | %.6f | %s |\n", i+1, e.Step, e.Phase, e.Move, e.Placement.Score, joinVariables(e.Placement.Variables))
	}
	return b.Bytes()
}

// HTML renders the markdown report as a complete HTML page
func HTML(run *ports.StoredRun) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse(Markdown(run))

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Placement run " + run.Info.Dataset,
	})
	return markdown.Render(doc, renderer)
}

// WriteHTML writes the HTML report to path
func WriteHTML(path string, run *ports.StoredRun) error {
	if err := os.WriteFile(path, HTML(run), 0o644); err != nil {
		return errors.StorageError(path, err)
	}
	return nil
}

func joinVariables(vars []placement.Variable) string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}
