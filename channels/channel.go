package channels

import (
	"context"

	"newswire/models"
)

// Channel is an outbound target notified when an article is approved.
// Implementations must be safe for concurrent use.
type Channel interface {
	// Name identifies the channel in dispatch logs.
	Name() string
	// Dispatch performs the side effect for one approved article and
	// returns how many recipients it reached.
	Dispatch(ctx context.Context, article *models.Article) (int, error)
}
