package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// Format selects a graphviz output encoding.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
	FormatDOT Format = "dot"
)

// RenderImage renders a DiagramModel as PNG bytes.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return RenderGraphviz(ctx, model, FormatPNG)
}

// RenderGraphviz lays out the model with dot and encodes it as format.
func RenderGraphviz(ctx context.Context, model *DiagramModel, format Format) ([]byte, error) {
	var gvFormat graphviz.Format
	switch format {
	case FormatPNG:
		gvFormat = graphviz.PNG
	case FormatSVG:
		gvFormat = graphviz.SVG
	case FormatDOT:
		gvFormat = graphviz.XDOT
	default:
		return nil, fmt.Errorf("diagram: unsupported graphviz format %q", format)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()
	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	nodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, n := range model.Nodes {
		gn, err := graph.CreateNodeByName(n.ID)
		if err != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", n.ID, err)
		}
		gn.SetLabel(firstLine(n.Label))
		styleNode(gn, n)
		nodes[n.ID] = gn
	}

	for _, n := range model.Nodes {
		for _, sg := range n.Children {
			cluster, err := graph.CreateSubGraphByName("cluster_" + mermaidSafeID(n.ID))
			if err != nil {
				continue
			}
			cluster.SetLabel(sg.Label)
			cluster.SetStyle(cgraph.DashedGraphStyle)
			for _, sub := range sg.Nodes {
				gn, err := cluster.CreateNodeByName(sub.ID)
				if err != nil {
					continue
				}
				gn.SetLabel(firstLine(sub.Label))
				styleNode(gn, sub)
				nodes[sub.ID] = gn
			}
			if len(sg.Nodes) > 0 {
				addEdge(graph, nodes, Edge{From: n.ID, To: sg.Nodes[0].ID, Inactive: true})
			}
			for _, e := range sg.Edges {
				addEdge(graph, nodes, e)
			}
		}
	}

	for _, e := range model.Edges {
		addEdge(graph, nodes, e)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func addEdge(graph *cgraph.Graph, nodes map[string]*cgraph.Node, e Edge) {
	from, to := nodes[e.From], nodes[e.To]
	if from == nil || to == nil {
		return
	}
	ge, err := graph.CreateEdgeByName("", from, to)
	if err != nil {
		return
	}
	if e.Label != "" {
		ge.SetLabel(e.Label)
	}
	if e.Inactive {
		ge.SetStyle(cgraph.DashedEdgeStyle)
	}
}

func styleNode(gn *cgraph.Node, n *Node) {
	switch n.Kind {
	case NodeKindBranch:
		gn.SetShape(cgraph.DiamondShape)
	case NodeKindMessage:
		gn.SetShape(cgraph.EllipseShape)
	case NodeKindSubWorkflow:
		gn.SetShape(cgraph.Box3DShape)
	case NodeKindTransform:
		gn.SetShape(cgraph.ParallelogramShape)
	case NodeKindMarker:
		gn.SetShape(cgraph.CdsShape)
	case NodeKindStart, NodeKindEnd:
		gn.SetShape(cgraph.CircleShape)
		gn.SetWidth(0.5)
		gn.SetHeight(0.5)
	default:
		gn.SetShape(cgraph.BoxShape)
	}
	if n.Status == nil {
		return
	}

	gn.SetStyle(cgraph.FilledNodeStyle)
	switch n.Status.Status {
	case StatusCompleted:
		gn.SetFillColor("#2d6a2d")
		gn.SetFontColor("white")
	case StatusFailed:
		gn.SetFillColor("#8b1a1a")
		gn.SetFontColor("white")
	case StatusSkipped:
		gn.SetFillColor("#e8e8e8")
		gn.SetFontColor("#888888")
		gn.SetStyle(cgraph.DashedNodeStyle)
	}
}
