package notification

import (
	"context"

	"github.com/felixgeelhaar/offline-agent/domain/notification"
	"github.com/felixgeelhaar/offline-agent/infrastructure/logging"
)

// LogPresenter writes each push to the agent log. It is the presenter used
// when no webhook endpoint is configured.
type LogPresenter struct{}

// NewLogPresenter creates a log presenter.
func NewLogPresenter() *LogPresenter {
	return &LogPresenter{}
}

// Present logs the descriptor.
func (LogPresenter) Present(_ context.Context, d notification.Descriptor) error {
	logging.Info().
		Add(logging.Component("push")).
		Add(logging.Str("push_id", d.ID)).
		Add(logging.Str("title", d.Title)).
		Add(logging.Str("tag", d.Tag)).
		Msg("push received")
	return nil
}

// Close is a no-op.
func (LogPresenter) Close() error {
	return nil
}
