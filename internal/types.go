package internal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LineItem is one normalized invoice product line. It is never mutated after
// the parser emits it.
type LineItem struct {
	Product    string          `json:"product"`
	Stems      int64           `json:"stems"`
	RateUSD    decimal.Decimal `json:"rate_usd"`
	ValueUSD   decimal.Decimal `json:"value_usd"`
	SourceFile string          `json:"source_file"`
}

type FinalRow struct {
	Product         string          `json:"product"`
	TotalStems      int64           `json:"total_stems"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	Price           decimal.Decimal `json:"price"`
	OperationalCost decimal.Decimal `json:"operational_cost"`
	TotalPerStem    decimal.Decimal `json:"total_per_stem"`
}

type DocumentStatus string

const (
	DocumentOK      DocumentStatus = "ok"
	DocumentFailed  DocumentStatus = "failed"
	DocumentSkipped DocumentStatus = "skipped"
)

type DocumentResult struct {
	File     string
	Supplier string
	Status   DocumentStatus
	Items    int
	Stems    int64
	Err      error
}

func (r DocumentResult) Log() string {
	switch r.Status {
	case DocumentOK:
		return fmt.Sprintf("ok: %s processed (%s) items=%d stems=%d", r.File, r.Supplier, r.Items, r.Stems)
	case DocumentSkipped:
		return fmt.Sprintf("skipped: %s", r.File)
	default:
		return fmt.Sprintf("error: %s (%s): %v", r.File, r.Supplier, r.Err)
	}
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
	RunID      *string
}

type FetchedMailMessage struct {
	Provider string
	// MessageID is the provider-side id used when the raw message has no Message-ID header.
	MessageID string
	Raw       []byte
}

type RunRecord struct {
	ID           string
	CreatedAt    string
	ExchangeRate decimal.Decimal
	Source       string
	ItemCount    int
}
