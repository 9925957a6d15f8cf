package connectors

import (
	"context"

	"florapricing/internal"
)

// MailConnector pulls raw messages from a mailbox. Header parsing is left to
// the store so every provider is handled the same way.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}
