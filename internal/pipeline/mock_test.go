package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/parcabul/broker/internal/catalog"
	"github.com/parcabul/broker/internal/directory"
	"github.com/parcabul/broker/internal/events"
	"github.com/parcabul/broker/internal/model"
)

// --- Catalog Mock ---

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Search(ctx context.Context, c model.Criteria) ([]model.CatalogMatch, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CatalogMatch), args.Error(1)
}

// --- Directory Mock ---

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) FindByPhones(ctx context.Context, phones []string) (map[string]model.SupplierRecord, error) {
	args := m.Called(ctx, phones)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]model.SupplierRecord), args.Error(1)
}

// --- Recorder Mock ---

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Record(ctx context.Context, hdr model.RequestRecord, matches []model.EnrichedMatch) (*model.RequestRecord, error) {
	args := m.Called(ctx, hdr, matches)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RequestRecord), args.Error(1)
}

// --- Publisher Mock ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishRequestCreated(ctx context.Context, e events.RequestCreated) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

var (
	_ catalog.Source      = (*mockSource)(nil)
	_ directory.Directory = (*mockDirectory)(nil)
	_ Recorder            = (*mockRecorder)(nil)
	_ events.Publisher    = (*mockPublisher)(nil)
)
