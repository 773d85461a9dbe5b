package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/survey"
)

// Overlay contains session data to visualize on the graph.
type Overlay struct {
	// Visited lists step indices already seen.
	Visited []int
	// Current is the active step index; negative means none.
	Current int
}

// GenerateMermaid produces a Mermaid flowchart of the survey's step sequence.
// It applies semantic styling:
// - Welcome: ((Circle))
// - Question: [/Parallelogram/] listing the question ids
// - Results: [[Subroutine]] annotated with the email gate delay
// - Educational: [Rectangle]
// Forward moves are solid arrows; back navigation is implied and not drawn.
func GenerateMermaid(def *survey.Definition, gateDelay time.Duration, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i, step := range def.Steps {
		id := nodeID(i)
		opener, closer := "[", "]"
		label := string(step.Kind)

		switch step.Kind {
		case domain.StepWelcome:
			opener, closer = "((", "))"
			if def.Title != "" {
				label = def.Title
			}
		case domain.StepEducational:
			if edu, ok := step.AsEducational(); ok {
				label = edu.Title
			}
		case domain.StepQuestion:
			opener, closer = "[/", "/]"
			if q, ok := step.AsQuestion(); ok {
				ids := make([]string, len(q.Items))
				for j, item := range q.Items {
					ids[j] = item.ID
				}
				label = q.Title + " <br/> " + strings.Join(ids, ", ")
			}
		case domain.StepResults:
			opener, closer = "[[", "]]"
			label = "Results"
			if gateDelay > 0 {
				label += fmt.Sprintf(" <br/> ⏱️ email gate after %s", gateDelay)
			}
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", id, opener, escape(label), closer)

		if i+1 < len(def.Steps) {
			arrow := "-->"
			if step.Kind == domain.StepQuestion && def.Steps[i+1].Kind == domain.StepResults {
				arrow = `-- "all answered" -->`
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", id, arrow, nodeID(i+1))
		}
	}

	// Apply Overlay Styles
	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[int]bool)
		for _, i := range overlay.Visited {
			if i < 0 || i >= len(def.Steps) || seen[i] || i == overlay.Current {
				continue
			}
			seen[i] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", nodeID(i))
		}
		if overlay.Current >= 0 && overlay.Current < len(def.Steps) {
			fmt.Fprintf(&sb, "    class %s current;\n", nodeID(overlay.Current))
		}
	}

	return sb.String()
}

func nodeID(i int) string {
	return fmt.Sprintf("step%d", i)
}

// escape replaces double quotes, which would end a Mermaid label.
func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
