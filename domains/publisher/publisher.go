package publisher

import (
	"context"

	domainPost "github.com/AzielCF/az-autopost/domains/post"
)

// IPublisher posts text to the social platform and reads back engagement.
// Metrics returns nil without error when the platform has no data yet.
type IPublisher interface {
	Publish(ctx context.Context, text string) (id string, err error)
	Metrics(ctx context.Context, id string) (*domainPost.Engagement, error)
}
