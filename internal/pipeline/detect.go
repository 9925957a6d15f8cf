package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"
)

type DetectResult struct {
	IsInvoice bool
	Reason    string
}

// DetectInvoice accepts JSON documents whose top level carries an "invoices" key.
func DetectInvoice(name, contentType string, content []byte) DetectResult {
	lowerName := strings.ToLower(strings.TrimSpace(name))
	lowerType := strings.ToLower(contentType)
	if !strings.HasSuffix(lowerName, ".json") && !strings.Contains(lowerType, "json") {
		return DetectResult{Reason: "not_json"}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf")), &top); err != nil {
		return DetectResult{Reason: "invalid_json"}
	}
	if _, ok := top["invoices"]; !ok {
		return DetectResult{Reason: "no_invoices"}
	}
	return DetectResult{IsInvoice: true, Reason: "invoice"}
}
