package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
// Inactive edges are drawn dotted.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	for _, node := range model.Nodes {
		fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))

		for _, sg := range node.Children {
			fmt.Fprintf(&b, "    subgraph %s[\"%s: %s\"]\n",
				mermaidSafeID(node.ID+"_"+sg.Label), node.ID, sg.Label)
			for _, subNode := range sg.Nodes {
				fmt.Fprintf(&b, "        %s\n", mermaidNodeDef(subNode))
			}
			for _, edge := range sg.Edges {
				fmt.Fprintf(&b, "        %s\n", mermaidEdge(edge))
			}
			b.WriteString("    end\n")
			if len(sg.Nodes) > 0 {
				fmt.Fprintf(&b, "    %s -.-> %s\n", mermaidSafeID(node.ID), mermaidSafeID(sg.Nodes[0].ID))
			}
		}
	}

	for _, edge := range model.Edges {
		fmt.Fprintf(&b, "    %s\n", mermaidEdge(edge))
	}

	b.WriteString("\n")
	b.WriteString("    classDef completed fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef skipped fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")

	for _, node := range model.Nodes {
		if node.Status != nil {
			if cls := mermaidStatusClass(node.Status.Status); cls != "" {
				fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
			}
		}
	}

	return b.String()
}

func mermaidEdge(edge Edge) string {
	arrow := "-->"
	if edge.Inactive {
		arrow = "-.->"
	}
	label := ""
	if edge.Label != "" {
		label = fmt.Sprintf("|%s|", edge.Label)
	}
	return fmt.Sprintf("%s %s%s %s", mermaidSafeID(edge.From), arrow, label, mermaidSafeID(edge.To))
}

// mermaidNodeDef returns a Mermaid node definition with the shape for its kind.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := firstLine(node.Label)

	switch node.Kind {
	case NodeKindBranch:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindMessage:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindSubWorkflow:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case NodeKindTransform:
		return fmt.Sprintf("%s[/%q/]", id, label)
	case NodeKindMarker:
		return fmt.Sprintf("%s>%q]", id, label)
	case NodeKindStart, NodeKindEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID replaces dots, dashes and spaces with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

func mermaidStatusClass(status string) string {
	switch status {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return status
	default:
		return ""
	}
}
