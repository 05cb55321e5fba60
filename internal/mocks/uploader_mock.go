package mocks

import (
	"context"

	"github.com/benmeehan/gps-streamer/internal/models"
	"github.com/benmeehan/gps-streamer/pkg/uploader"
	"github.com/stretchr/testify/mock"
)

// Uploader is a mock implementation of the uploader.Uploader interface
type Uploader struct {
	mock.Mock
}

func (m *Uploader) PostLocation(ctx context.Context, record models.LocationRecord) (uploader.Response, error) {
	args := m.Called(ctx, record)
	return args.Get(0).(uploader.Response), args.Error(1)
}
