package mocks

import (
	"github.com/benmeehan/gps-streamer/internal/models"
	"github.com/stretchr/testify/mock"
)

// Notifier is a mock implementation of the services.Notifier interface
type Notifier struct {
	mock.Mock
}

func (m *Notifier) Notify(notice models.Notice) {
	m.Called(notice)
}
