package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

func statusTag(status string) string {
	switch status {
	case StatusCompleted:
		return "[OK]"
	case StatusFailed:
		return "[FAIL]"
	case StatusSkipped:
		return "[SKIP]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as rows of boxes, one row per level,
// followed by the labeled and inactive edges that the rows cannot show.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder
	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	index := make(map[string]*Node, len(model.Nodes))
	for _, n := range model.Nodes {
		index[n.ID] = n
	}

	for i, level := range model.Levels {
		var row []box
		for _, id := range level {
			if n := index[id]; n != nil {
				row = append(row, newBox(n))
			}
		}
		writeRow(&b, row)
		if i < len(model.Levels)-1 && len(row) > 0 {
			b.WriteString("       │\n       ▼\n")
		}
	}

	var routed []Edge
	for _, e := range model.Edges {
		if e.Label != "" || e.Inactive {
			routed = append(routed, e)
		}
	}
	if len(routed) > 0 {
		b.WriteString("\nRoutes:\n")
		for _, e := range routed {
			b.WriteString("  " + asciiEdge(e) + "\n")
		}
	}

	for _, n := range model.Nodes {
		for _, sg := range n.Children {
			fmt.Fprintf(&b, "\n--- %s -> %s ---\n", n.ID, sg.Label)
			for _, sub := range sg.Nodes {
				fmt.Fprintf(&b, "    %s\n", shortID(sub.ID))
			}
			for _, e := range sg.Edges {
				e.From, e.To = shortID(e.From), shortID(e.To)
				fmt.Fprintf(&b, "    %s\n", asciiEdge(e))
			}
		}
	}
	return b.String()
}

func asciiEdge(e Edge) string {
	arrow := "─→"
	if e.Label != "" {
		arrow = "─" + e.Label + "→"
	}
	s := fmt.Sprintf("%s %s %s", e.From, arrow, e.To)
	if e.Inactive {
		s += " (inactive)"
	}
	return s
}

type box struct {
	lines []string
	width int
}

func newBox(n *Node) box {
	content := []string{firstLine(n.Label)}
	if n.Status != nil {
		if tag := statusTag(n.Status.Status); tag != "" {
			content = append(content, tag)
		}
		if n.Status.DurationMs > 0 {
			content = append(content, fmt.Sprintf("%dms", n.Status.DurationMs))
		}
	}

	inner := 0
	for _, c := range content {
		inner = max(inner, utf8.RuneCountInString(c))
	}
	lines := make([]string, 0, len(content)+2)
	lines = append(lines, "┌"+strings.Repeat("─", inner+2)+"┐")
	for _, c := range content {
		pad := strings.Repeat(" ", inner-utf8.RuneCountInString(c))
		lines = append(lines, "│ "+c+pad+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", inner+2)+"┘")
	return box{lines: lines, width: inner + 4}
}

func writeRow(b *strings.Builder, row []box) {
	height := 0
	for _, bx := range row {
		height = max(height, len(bx.lines))
	}
	for r := range height {
		for i, bx := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			if r < len(bx.lines) {
				b.WriteString(bx.lines[r])
			} else {
				b.WriteString(strings.Repeat(" ", bx.width))
			}
		}
		b.WriteByte('\n')
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// shortID drops the parent qualifier of a sub-workflow node id.
func shortID(id string) string {
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		return id[i+1:]
	}
	return id
}
