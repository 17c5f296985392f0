package mocks

import (
	"context"

	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	RunRecords       *MockRunRecordRepository
	OperationRecords *MockOperationRecordRepository
}

// NewMockPersistence creates a persistence mock with empty repository mocks.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		RunRecords:       &MockRunRecordRepository{},
		OperationRecords: &MockOperationRecordRepository{},
	}
}

func (m *MockPersistence) RunRecordRepository() persistence.RunRecordRepository {
	return m.RunRecords
}

func (m *MockPersistence) OperationRecordRepository() persistence.OperationRecordRepository {
	return m.OperationRecords
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockRunRecordRepository is a mock implementation of persistence.RunRecordRepository interface.
type MockRunRecordRepository struct {
	mock.Mock
}

func (m *MockRunRecordRepository) Get(ctx context.Context, appID string) (*models.AppRunRecord, error) {
	args := m.Called(ctx, appID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.AppRunRecord), args.Error(1)
}

func (m *MockRunRecordRepository) Save(ctx context.Context, record *models.AppRunRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockRunRecordRepository) List(ctx context.Context) ([]*models.AppRunRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.AppRunRecord), args.Error(1)
}

func (m *MockRunRecordRepository) Delete(ctx context.Context, appID string) error {
	args := m.Called(ctx, appID)

	return args.Error(0)
}

// MockOperationRecordRepository is a mock implementation of persistence.OperationRecordRepository interface.
type MockOperationRecordRepository struct {
	mock.Mock
}

func (m *MockOperationRecordRepository) Save(ctx context.Context, record *models.OperationRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockOperationRecordRepository) ListByRun(ctx context.Context, runID string) ([]*models.OperationRecord, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.OperationRecord), args.Error(1)
}

func (m *MockOperationRecordRepository) Recent(ctx context.Context, limit int) ([]*models.OperationRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.OperationRecord), args.Error(1)
}
