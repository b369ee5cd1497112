// Package layout describes where the neurons sit on the canvas and maps
// pointer positions back onto them.
package layout

import (
	"math"

	"github.com/nvandessel/neurodemo/internal/constants"
	"github.com/nvandessel/neurodemo/internal/neuron"
)

// Point is a canvas position in pixels.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Rect is an axis-aligned rectangle in pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Segment is a straight line between two canvas points.
type Segment struct {
	From neuron.NodeID `json:"from"`
	To   neuron.NodeID `json:"to"`
	A    Point         `json:"a"`
	B    Point         `json:"b"`
}

// Layout holds the fixed geometry of the demo canvas.
type Layout struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`

	// Radius is both the drawn radius of every neuron and its click target.
	Radius int `json:"radius" yaml:"radius"`

	Input1 Point `json:"input1" yaml:"input1"`
	Input2 Point `json:"input2" yaml:"input2"`
	Output Point `json:"output" yaml:"output"`

	// Bar is the stimulation bar at 100% charge.
	Bar Rect `json:"bar" yaml:"bar"`
}

// Default returns the geometry of the original demo window.
func Default() Layout {
	return Layout{
		Width:  constants.CanvasWidth,
		Height: constants.CanvasHeight,
		Radius: constants.NeuronRadius,
		Input1: Point{X: 121, Y: 151},
		Input2: Point{X: 121, Y: 331},
		Output: Point{X: 701, Y: 241},
		Bar: Rect{
			X:      constants.StimulationBarX,
			Y:      constants.StimulationBarY,
			Width:  constants.StimulationBarWidth,
			Height: constants.StimulationBarHeight,
		},
	}
}

// Center returns the position of the neuron named by id.
func (l Layout) Center(id neuron.NodeID) Point {
	switch id {
	case neuron.Input1:
		return l.Input1
	case neuron.Input2:
		return l.Input2
	default:
		return l.Output
	}
}

// Contains reports whether p lies on the canvas.
func (l Layout) Contains(p Point) bool {
	return p.X >= 0 && p.X < l.Width && p.Y >= 0 && p.Y < l.Height
}

// WithinRadius reports whether p lies inside or on the circle around center.
// Points outside the bounding square are rejected before squaring so far-off
// coordinates cannot overflow into a hit.
func WithinRadius(p, center Point, radius int) bool {
	dx := int64(p.X) - int64(center.X)
	dy := int64(p.Y) - int64(center.Y)
	r := int64(radius)
	if dx < -r || dx > r || dy < -r || dy > r {
		return false
	}
	return dx*dx+dy*dy <= r*r
}

// HitTest returns the input neuron under p. Inputs are tested in order and
// the first hit wins; the output neuron is never a click target.
func (l Layout) HitTest(p Point) (neuron.NodeID, bool) {
	for _, id := range neuron.Inputs {
		if WithinRadius(p, l.Center(id), l.Radius) {
			return id, true
		}
	}
	return "", false
}

// Connections returns the lines from each input to the output, trimmed so
// they start and end on the circle outlines rather than at the centers.
func (l Layout) Connections() []Segment {
	segs := make([]Segment, 0, len(neuron.Inputs))
	for _, id := range neuron.Inputs {
		a, b := l.trim(l.Center(id), l.Output)
		segs = append(segs, Segment{From: id, To: neuron.Output, A: a, B: b})
	}
	return segs
}

func (l Layout) trim(start, end Point) (Point, Point) {
	angle := math.Atan2(float64(end.Y-start.Y), float64(end.X-start.X))
	r := float64(l.Radius)
	dx := r * math.Cos(angle)
	dy := r * math.Sin(angle)
	return Point{X: int(float64(start.X) + dx), Y: int(float64(start.Y) + dy)},
		Point{X: int(float64(end.X) - dx), Y: int(float64(end.Y) - dy)}
}

// BarFill returns the filled part of the stimulation bar for a charge given
// as a percentage of the threshold. The fill grows upward from the bottom.
func (l Layout) BarFill(percent float64) Rect {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	h := int(float64(l.Bar.Height) * percent / 100)
	return Rect{
		X:      l.Bar.X,
		Y:      l.Bar.Y + l.Bar.Height - h,
		Width:  l.Bar.Width,
		Height: h,
	}
}
