package console

import (
	"github.com/benmeehan/gps-streamer/internal/models"
	"github.com/rs/zerolog"
)

// LogNotifier records operator notices in the structured log. The screen shows the
// latest one through the streamer snapshot.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notice.
func (n *LogNotifier) Notify(notice models.Notice) {
	n.logger.Info().
		Str("notice", notice.Text).
		Bool("long", notice.Long).
		Msg("Operator notice")
}
