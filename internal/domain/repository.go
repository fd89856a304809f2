package domain

import "context"

// BlobStore uploads a staged local file and returns a URL that resolves to
// the content when combined with token.
type BlobStore interface {
	Store(ctx context.Context, localPath, contentType, token string) (string, error)
}

// ArtRepository persists art records keyed by their generated id.
type ArtRepository interface {
	WriteRecord(ctx context.Context, id string, record ArtRecord) error
}

// ArtReader loads a persisted record by its generated id.
type ArtReader interface {
	GetRecord(ctx context.Context, id string) (*ArtRecord, error)
}

// SubscriptionRepository reads the current subscriber set.
type SubscriptionRepository interface {
	ReadSubscriptions(ctx context.Context) (Snapshot, error)
}

// MetadataRepository is the shared database holding records and subscriptions.
type MetadataRepository interface {
	ArtRepository
	ArtReader
	SubscriptionRepository
}

// Pusher delivers one encoded payload to one subscription. It returns the
// push service status code when a response was received.
type Pusher interface {
	Push(ctx context.Context, sub Subscription, message []byte) (int, error)
}
