package connectors

import (
	"context"
	"log/slog"

	"florapricing/internal/storage"
)

type FetchService struct {
	db        *storage.DB
	connector MailConnector
	store     *MailStoreService
	logger    *slog.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
	Failed  int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, logger *slog.Logger) *FetchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchService{
		db:        db,
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		logger:    logger,
	}
}

// FetchAndStore saves every fetched message it can parse. An unparseable
// message is logged and counted, the rest are still stored.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		row, err := s.store.Store(msg)
		if err != nil {
			s.logger.Warn("store message failed", "provider", msg.Provider, "message", msg.MessageID, "err", err)
			res.Failed++
			continue
		}
		s.logger.Debug("message stored", "email", row.ID, "subject", row.Subject)
		res.Stored++
	}
	return res, nil
}
