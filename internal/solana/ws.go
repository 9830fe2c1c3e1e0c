package solana

import "context"

// WSClient is the pubsub side of a Solana node: program log streams for the
// watcher and one-shot signature notifications for the confirmer.
type WSClient interface {
	// SubscribeLogs streams transaction logs that mention one of
	// filter.Mentions. The channel closes when the client closes.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// SubscribeSignature delivers at most one notification, once signature
	// reaches commitment, and then closes the channel. Ending ctx first
	// cancels the subscription and closes the channel empty.
	SubscribeSignature(ctx context.Context, signature, commitment string) (<-chan SignatureNotification, error)

	Close() error
}

// LogsFilter selects transactions by the accounts they mention.
type LogsFilter struct {
	Mentions []string
}

// LogNotification is one logsNotification message. Err is the transaction
// error as reported by the node, nil on success.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       any
}

// SignatureNotification is one signatureNotification message.
type SignatureNotification struct {
	Slot int64
	Err  any
}
