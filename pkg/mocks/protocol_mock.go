package mocks

import (
	"context"
	"image"
	"time"

	"github.com/dukex/opflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockScreen is a mock implementation of protocol.Screen interface.
type MockScreen struct {
	mock.Mock
}

func (m *MockScreen) Screenshot(ctx context.Context) (image.Image, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(image.Image), args.Error(1)
}

// MockRecognizer is a mock implementation of protocol.Recognizer interface.
type MockRecognizer struct {
	mock.Mock
}

func (m *MockRecognizer) FindArea(ctx context.Context, area protocol.Area, img image.Image) (bool, error) {
	args := m.Called(ctx, area, img)

	return args.Bool(0), args.Error(1)
}

func (m *MockRecognizer) RunOCR(ctx context.Context, img image.Image) ([]protocol.OCRMatch, error) {
	args := m.Called(ctx, img)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]protocol.OCRMatch), args.Error(1)
}

func (m *MockRecognizer) MatchTemplate(ctx context.Context, img image.Image, templateID string, threshold float64) (*protocol.TemplateMatch, error) {
	args := m.Called(ctx, img, templateID, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.TemplateMatch), args.Error(1)
}

// MockController is a mock implementation of protocol.Controller interface.
type MockController struct {
	mock.Mock
}

func (m *MockController) Click(ctx context.Context, point protocol.Point) error {
	args := m.Called(ctx, point)

	return args.Error(0)
}

func (m *MockController) Move(ctx context.Context, direction protocol.Direction, duration time.Duration) error {
	args := m.Called(ctx, direction, duration)

	return args.Error(0)
}

func (m *MockController) DragTo(ctx context.Context, from, to protocol.Point, duration time.Duration) error {
	args := m.Called(ctx, from, to, duration)

	return args.Error(0)
}

// MockTemplateLoader is a mock implementation of protocol.TemplateLoader interface.
type MockTemplateLoader struct {
	mock.Mock
}

func (m *MockTemplateLoader) LoadTemplate(ctx context.Context, id string) (image.Image, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(image.Image), args.Error(1)
}
