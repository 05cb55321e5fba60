package mocks

import (
	"context"

	"github.com/benmeehan/gps-streamer/pkg/permission"
	"github.com/stretchr/testify/mock"
)

// Prompter is a mock implementation of the permission.Prompter interface
type Prompter struct {
	mock.Mock
}

func (m *Prompter) Ask(ctx context.Context, perm permission.Permission) (bool, error) {
	args := m.Called(ctx, perm)
	return args.Bool(0), args.Error(1)
}
