package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// cliTimeout bounds one mermaid-ascii invocation.
const cliTimeout = 10 * time.Second

// RenderASCIIAuto renders through the mermaid-ascii binary in binDir when it
// exists and falls back to RenderASCII otherwise.
func RenderASCIIAuto(ctx context.Context, model *DiagramModel, binDir string) string {
	if binDir == "" {
		return RenderASCII(model)
	}
	bin := filepath.Join(binDir, "mermaid-ascii")
	if _, err := os.Stat(bin); err != nil {
		return RenderASCII(model)
	}
	out, err := RenderASCIIViaCLI(ctx, model, bin)
	if err != nil {
		return RenderASCII(model)
	}
	return out
}

// RenderASCIIViaCLI pipes RenderMermaidForCLI output through the binary at bin.
func RenderASCIIViaCLI(ctx context.Context, model *DiagramModel, bin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, cliTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin)
	cmd.Stdin = strings.NewReader(RenderMermaidForCLI(model))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// RenderMermaidForCLI generates the reduced Mermaid dialect the mermaid-ascii
// tool accepts: no labeled node declarations, so outcome tags are folded into
// the node ids. Sub-workflow bodies are flattened behind their parent node.
func RenderMermaidForCLI(model *DiagramModel) string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	display := make(map[string]string, len(model.Nodes))
	for _, n := range model.Nodes {
		display[n.ID] = cliNodeID(n)
		for _, sg := range n.Children {
			for _, sub := range sg.Nodes {
				display[sub.ID] = cliNodeID(sub)
			}
		}
	}
	resolve := func(id string) string {
		if d, ok := display[id]; ok {
			return d
		}
		return mermaidSafeID(id)
	}
	edge := func(e Edge) {
		label := e.Label
		if e.Inactive {
			label = strings.TrimSpace(label + " off")
		}
		if label != "" {
			label = "|" + label + "|"
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", resolve(e.From), label, resolve(e.To))
	}

	for _, e := range model.Edges {
		edge(e)
	}
	for _, n := range model.Nodes {
		for _, sg := range n.Children {
			if len(sg.Nodes) > 0 {
				edge(Edge{From: n.ID, To: sg.Nodes[0].ID, Label: sg.Label})
			}
			for _, e := range sg.Edges {
				edge(e)
			}
		}
	}
	return b.String()
}

// cliNodeID is the node name plus its outcome tag and duration, dash-joined.
func cliNodeID(n *Node) string {
	id := firstLine(n.Label)
	if id == "" {
		id = n.ID
	}
	if n.Status != nil {
		if tag := strings.Trim(statusTag(n.Status.Status), "[]"); tag != "" {
			id += "-" + tag
		}
		if n.Status.DurationMs > 0 {
			id += fmt.Sprintf("-%dms", n.Status.DurationMs)
		}
	}
	return strings.ReplaceAll(id, " ", "-")
}
