// Package visualization renders the neuron canvas: a live browser view served
// over HTTP and WebSocket, plus static DOT and JSON exports of a snapshot.
package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/nvandessel/neurodemo/internal/layout"
	"github.com/nvandessel/neurodemo/internal/neuron"
)

// Format specifies the output format for static rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (valid: dot, json)", s)
}

// Fill colors for the two neuron states.
const (
	colorInactive = "lightgray"
	colorActive   = "gold"
)

func fillColor(active bool) string {
	if active {
		return colorActive
	}
	return colorInactive
}

// RenderDOT produces a Graphviz DOT drawing of the three neurons at their
// canvas positions, filled by activation state. The output node is labelled
// with its charge.
func RenderDOT(snap neuron.Snapshot, lay layout.Layout) string {
	var b strings.Builder
	b.WriteString("digraph neurodemo {\n")
	b.WriteString("  layout=neato;\n")
	b.WriteString("  node [shape=circle, style=filled, fixedsize=true, width=1.2, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, id := range neuron.Nodes {
		state := snap.Node(id)
		label := string(id)
		if id == neuron.Output {
			label = fmt.Sprintf("%s\\n%.0f%%", id, snap.Percent)
		}
		p := lay.Center(id)
		// Graphviz y grows upward; the canvas y grows downward.
		fmt.Fprintf(&b, "  %q [label=\"%s\", fillcolor=%q, pos=\"%d,%d!\"];\n",
			id, label, fillColor(state.Active), p.X, lay.Height-p.Y)
	}
	b.WriteString("\n")

	for _, seg := range lay.Connections() {
		style := "solid"
		if !snap.Node(seg.From).Active {
			style = "dashed"
		}
		fmt.Fprintf(&b, "  %q -> %q [style=%s];\n", seg.From, seg.To, style)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces the snapshot as a node/edge document with the
// geometry needed to draw it.
func RenderJSON(snap neuron.Snapshot, lay layout.Layout) map[string]any {
	nodes := make([]map[string]any, 0, len(neuron.Nodes))
	for _, id := range neuron.Nodes {
		p := lay.Center(id)
		nodes = append(nodes, map[string]any{
			"id":     id,
			"active": snap.Node(id).Active,
			"x":      p.X,
			"y":      p.Y,
			"radius": lay.Radius,
		})
	}

	segs := lay.Connections()
	edges := make([]map[string]any, 0, len(segs))
	for _, seg := range segs {
		edges = append(edges, map[string]any{
			"source": seg.From,
			"target": seg.To,
			"a":      seg.A,
			"b":      seg.B,
		})
	}

	return map[string]any{
		"nodes":   nodes,
		"edges":   edges,
		"level":   snap.Level,
		"percent": snap.Percent,
		"bar":     lay.BarFill(snap.Percent),
	}
}

// sceneData is the static geometry the page needs before the first frame.
type sceneData struct {
	Layout      layout.Layout    `json:"layout"`
	Connections []layout.Segment `json:"connections"`
	Background  bool             `json:"background"`
}

// htmlTemplateData holds data passed to the HTML template.
// SceneJSON is pre-sanitized JSON (via json.HTMLEscape) safe for inline <script>.
type htmlTemplateData struct {
	Width     int
	Height    int
	SceneJSON template.JS
}

// RenderHTML produces the live canvas page for lay.
func RenderHTML(lay layout.Layout, background bool) ([]byte, error) {
	sceneJSON, err := json.Marshal(sceneData{
		Layout:      lay,
		Connections: lay.Connections(),
		Background:  background,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal scene: %w", err)
	}

	tmplBytes, err := templates.ReadFile("templates/index.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read HTML template: %w", err)
	}

	tmpl, err := template.New("index").Parse(string(tmplBytes))
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, sceneJSON)

	var buf bytes.Buffer
	data := htmlTemplateData{
		Width:     lay.Width,
		Height:    lay.Height,
		SceneJSON: template.JS(escaped.String()), // #nosec G203
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}

	return buf.Bytes(), nil
}
