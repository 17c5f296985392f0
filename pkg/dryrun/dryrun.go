// Package dryrun provides collaborators that drive routines without a real
// screen: chosen areas are always visible and input is only logged.
package dryrun

import (
	"context"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/protocol"
)

const (
	defaultWidth  = 1920
	defaultHeight = 1080
)

// Backend is a Screen, Recognizer and Controller at once.
type Backend struct {
	logger *slog.Logger
	frame  image.Image

	mu     sync.RWMutex
	areas  map[string]bool
	inputs int
}

var (
	_ protocol.Screen     = (*Backend)(nil)
	_ protocol.Recognizer = (*Backend)(nil)
	_ protocol.Controller = (*Backend)(nil)
)

// New creates a backend on which the named areas are visible.
func New(logger *slog.Logger, areas ...string) *Backend {
	b := &Backend{
		logger: logger.With("module", "dryrun"),
		frame:  image.NewGray(image.Rect(0, 0, defaultWidth, defaultHeight)),
		areas:  make(map[string]bool, len(areas)),
	}

	for _, area := range areas {
		b.Show(area)
	}

	return b
}

// ParseAreas splits a comma separated list of area names.
func ParseAreas(raw string) []string {
	var areas []string

	for _, area := range strings.Split(raw, ",") {
		area = strings.TrimSpace(area)
		if area != "" {
			areas = append(areas, area)
		}
	}

	return areas
}

// Options installs the backend as every collaborator of an execution context.
func (b *Backend) Options() []execution.Option {
	return []execution.Option{
		execution.WithScreen(b),
		execution.WithRecognizer(b),
		execution.WithController(b),
	}
}

// Show makes an area visible.
func (b *Backend) Show(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.areas[name] = true
}

// Hide makes an area invisible.
func (b *Backend) Hide(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.areas, name)
}

// Inputs returns how many inputs were dispatched.
func (b *Backend) Inputs() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.inputs
}

func (b *Backend) Screenshot(_ context.Context) (image.Image, error) {
	return b.frame, nil
}

func (b *Backend) FindArea(ctx context.Context, area protocol.Area, _ image.Image) (bool, error) {
	b.mu.RLock()
	found := b.areas[area.Name]
	b.mu.RUnlock()

	b.logger.DebugContext(ctx, "Find area", "area", area.Name, "found", found)

	return found, nil
}

// RunOCR reports the text of nothing but the visible areas, each at its rect.
func (b *Backend) RunOCR(_ context.Context, _ image.Image) ([]protocol.OCRMatch, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matches := make([]protocol.OCRMatch, 0, len(b.areas))
	for name := range b.areas {
		matches = append(matches, protocol.OCRMatch{Text: name, Confidence: 1})
	}

	return matches, nil
}

// MatchTemplate matches a template whose ID is a visible area name.
func (b *Backend) MatchTemplate(_ context.Context, _ image.Image, templateID string, _ float64) (*protocol.TemplateMatch, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.areas[templateID] {
		return nil, nil //nolint:nilnil // no match is not an error
	}

	return &protocol.TemplateMatch{TemplateID: templateID, Confidence: 1}, nil
}

func (b *Backend) Click(ctx context.Context, point protocol.Point) error {
	b.count()
	b.logger.InfoContext(ctx, "Click", "x", point.X, "y", point.Y)

	return nil
}

func (b *Backend) Move(ctx context.Context, direction protocol.Direction, duration time.Duration) error {
	b.count()
	b.logger.InfoContext(ctx, "Move", "direction", direction, "duration", duration)

	return nil
}

func (b *Backend) DragTo(ctx context.Context, from, to protocol.Point, duration time.Duration) error {
	b.count()
	b.logger.InfoContext(ctx, "Drag", "from", from, "to", to, "duration", duration)

	return nil
}

func (b *Backend) count() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inputs++
}
