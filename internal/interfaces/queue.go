package interfaces

import (
	"context"

	"github.com/ternarybob/hoard/internal/models"
)

// QueueManager is the durable task transport. Acknowledgment is late: a
// message is only removed once the delete function returned by Receive is
// called, so a worker crash mid-execution leads to redelivery.
type QueueManager interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
	Receive(ctx context.Context) (*models.QueueMessage, func() error, error)
	Len(ctx context.Context) (int, error)
	Close() error
}
