package hypothesis

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/multi"

	"github.com/banshee-data/hypotrack/internal/solver"
)

const activeColor = "blue"

type dotNode struct {
	id    int64
	dotID string
	attrs []encoding.Attribute
}

func (n dotNode) ID() int64                        { return n.id }
func (n dotNode) DOTID() string                    { return n.dotID }
func (n dotNode) Attributes() []encoding.Attribute { return n.attrs }

type dotLine struct {
	multi.Line
	attrs []encoding.Attribute
}

func (l dotLine) ReversedLine() graph.Line {
	l.Line = l.Line.ReversedLine().(multi.Line)
	return l
}

func (l dotLine) Attributes() []encoding.Attribute { return l.attrs }

// ToDot writes the hypothesis graph in graphviz format. With a non-nil sol
// the active detections, links and divisions are drawn blue; exclusion
// groups are drawn as red dashed edges between their members.
func (m *Model) ToDot(w io.Writer, sol solver.Labeling) error {
	if sol != nil && (m.problem == nil || len(sol) != m.problem.NumVariables()) {
		return structuralf("solution does not match the model's problem")
	}
	active := func(v Variable) bool { return sol != nil && v.Active(sol) }

	g := multi.NewDirectedGraph()
	nodes := make([]dotNode, m.detections.Len())
	for i := range nodes {
		h := m.detections.At(i)
		n := dotNode{id: int64(i), dotID: fmt.Sprint(h.id)}
		label := fmt.Sprintf("%d", h.id)
		if h.timestep != UnknownTimestep {
			label = fmt.Sprintf("%d (t=%d)", h.id, h.timestep)
		}
		n.attrs = append(n.attrs, encoding.Attribute{Key: "label", Value: label})
		if active(h.detection) {
			n.attrs = append(n.attrs, encoding.Attribute{Key: "color", Value: activeColor})
			if s, _ := h.detection.State(sol); s > 1 {
				n.attrs = append(n.attrs, encoding.Attribute{Key: "xlabel", Value: fmt.Sprintf("x%d", s)})
			}
		}
		nodes[i] = n
		g.AddNode(n)
	}
	node := func(id ID) dotNode {
		i, _ := m.detections.Index(id)
		return nodes[i]
	}
	setLine := func(from, to graph.Node, attrs ...encoding.Attribute) {
		l := g.NewLine(from, to).(multi.Line)
		g.SetLine(dotLine{Line: l, attrs: attrs})
	}

	for _, l := range m.links {
		var attrs []encoding.Attribute
		if active(l.variable) {
			attrs = append(attrs, encoding.Attribute{Key: "color", Value: activeColor})
		}
		setLine(node(l.src), node(l.dest), attrs...)
	}

	for i, d := range m.divisions {
		key := d.Key()
		n := dotNode{
			id:    int64(len(nodes) + i),
			dotID: fmt.Sprintf("div_%d_%d_%d", key.Parent, key.Children[0], key.Children[1]),
			attrs: []encoding.Attribute{{Key: "shape", Value: "diamond"}, {Key: "label", Value: "div"}},
		}
		var attrs []encoding.Attribute
		if active(d.variable) {
			n.attrs = append(n.attrs, encoding.Attribute{Key: "color", Value: activeColor})
			attrs = append(attrs, encoding.Attribute{Key: "color", Value: activeColor})
		}
		g.AddNode(n)
		setLine(node(d.parent), n, attrs...)
		for _, c := range d.children {
			setLine(n, node(c), attrs...)
		}
	}

	for _, e := range m.exclusions {
		for a := 0; a < len(e.members); a++ {
			for b := a + 1; b < len(e.members); b++ {
				setLine(node(e.members[a]), node(e.members[b]),
					encoding.Attribute{Key: "color", Value: "red"},
					encoding.Attribute{Key: "style", Value: "dashed"},
					encoding.Attribute{Key: "dir", Value: "none"},
					encoding.Attribute{Key: "constraint", Value: "false"},
				)
			}
		}
	}

	b, err := dot.MarshalMulti(g, "hypotheses", "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dot graph: %w", err)
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("failed to write dot graph: %w", err)
	}
	return nil
}
