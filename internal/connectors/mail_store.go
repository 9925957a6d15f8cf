package connectors

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"florapricing/internal"
	"florapricing/internal/storage"
)

type MailStoreService struct {
	db         *storage.DB
	rawMailDir string
	now        func() time.Time
}

func NewMailStoreService(db *storage.DB, rawMailDir string) *MailStoreService {
	return &MailStoreService{db: db, rawMailDir: rawMailDir, now: time.Now}
}

// Store writes the raw message once per content hash and records it as
// fetched. A message seen before keeps its processing status.
func (s *MailStoreService) Store(msg internal.FetchedMailMessage) (internal.EmailRow, error) {
	hashBytes := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	if err := os.MkdirAll(s.rawMailDir, 0o755); err != nil {
		return internal.EmailRow{}, err
	}

	rawPath := filepath.Join(s.rawMailDir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.EmailRow{}, err
		}
	}

	h, err := s.headers(msg)
	if err != nil {
		return internal.EmailRow{}, err
	}
	return s.db.UpsertEmail(msg.Provider, h.messageID, h.subject, h.from, h.receivedAt, hash, rawPath, "fetched")
}

type mailHeaders struct {
	messageID  string
	subject    string
	from       string
	receivedAt string
}

func (s *MailStoreService) headers(msg internal.FetchedMailMessage) (mailHeaders, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(msg.Raw))
	if err != nil {
		return mailHeaders{}, fmt.Errorf("parse message %s: %w", msg.MessageID, err)
	}

	h := mailHeaders{
		messageID:  strings.TrimSpace(env.GetHeader("Message-ID")),
		subject:    env.GetHeader("Subject"),
		from:       env.GetHeader("From"),
		receivedAt: s.now().UTC().Format(time.RFC3339),
	}
	if h.messageID == "" {
		h.messageID = msg.MessageID
	}
	if date := env.GetHeader("Date"); date != "" {
		if t, err := parseMailDate(date); err == nil {
			h.receivedAt = t.UTC().Format(time.RFC3339)
		}
	}
	return h, nil
}

func parseMailDate(value string) (time.Time, error) {
	if t, err := mail.ParseDate(value); err == nil {
		return t, nil
	}
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC850, time.ANSIC}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %q", value)
}
