// Package protocol defines the contracts of the collaborators the engine drives:
// screen capture, recognition and input injection.
package protocol

import (
	"context"
	"image"
	"time"
)

// Point is a screen coordinate.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Rect is a screen rectangle, Min inclusive and Max exclusive.
type Rect struct {
	Min Point `json:"min" yaml:"min"`
	Max Point `json:"max" yaml:"max"`
}

// Center returns the middle point of the rectangle.
func (r Rect) Center() Point {
	return Point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Max.X <= r.Min.X || r.Max.Y <= r.Min.Y
}

// Contains reports whether p lies inside the rectangle.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X < r.Max.X && p.Y >= r.Min.Y && p.Y < r.Max.Y
}

// Area describes a region of the screen and how to recognize it. Matching
// thresholds travel with the area instead of living in global state.
type Area struct {
	Name       string  `json:"name"                  yaml:"name"`
	Rect       Rect    `json:"rect"                  yaml:"rect"`
	Text       string  `json:"text,omitempty"        yaml:"text,omitempty"`
	TemplateID string  `json:"template_id,omitempty" yaml:"template_id,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"   yaml:"threshold,omitempty"`
}

// Direction is a movement direction for the controller.
type Direction string

const (
	DirectionForward  Direction = "w"
	DirectionBackward Direction = "s"
	DirectionLeft     Direction = "a"
	DirectionRight    Direction = "d"
)

// OCRMatch is one recognized piece of text.
type OCRMatch struct {
	Text       string  `json:"text"`
	Rect       Rect    `json:"rect"`
	Confidence float64 `json:"confidence"`
}

// TemplateMatch is the best location of a template in an image.
type TemplateMatch struct {
	TemplateID string  `json:"template_id"`
	Rect       Rect    `json:"rect"`
	Confidence float64 `json:"confidence"`
}

// Screen captures the current frame of the target window.
type Screen interface {
	Screenshot(ctx context.Context) (image.Image, error)
}

// Recognizer finds things in a captured frame.
type Recognizer interface {
	// FindArea reports whether the area is currently shown in img.
	FindArea(ctx context.Context, area Area, img image.Image) (bool, error)

	// RunOCR returns all text recognized in img.
	RunOCR(ctx context.Context, img image.Image) ([]OCRMatch, error)

	// MatchTemplate returns the best match above threshold, or nil.
	MatchTemplate(ctx context.Context, img image.Image, templateID string, threshold float64) (*TemplateMatch, error)
}

// Controller dispatches synthetic input. A nil error only means the input was
// sent; its effect is observed on the next screenshot.
type Controller interface {
	Click(ctx context.Context, point Point) error
	Move(ctx context.Context, direction Direction, duration time.Duration) error
	DragTo(ctx context.Context, from, to Point, duration time.Duration) error
}

// TemplateLoader loads recognition templates by ID.
type TemplateLoader interface {
	LoadTemplate(ctx context.Context, id string) (image.Image, error)
}
