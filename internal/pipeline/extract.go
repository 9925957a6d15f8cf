package pipeline

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"
)

type Attachment struct {
	Name    string
	Content []byte
}

type ExtractResult struct {
	Subject     string
	From        string
	Date        string
	Attachments []Attachment
	// Skipped lists attachment names that are not invoices.
	Skipped []string
}

func ExtractInvoiceAttachments(raw []byte) (ExtractResult, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return ExtractResult{}, err
	}

	out := ExtractResult{
		Subject: env.GetHeader("Subject"),
		From:    env.GetHeader("From"),
		Date:    env.GetHeader("Date"),
	}
	parts := append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	for _, part := range parts {
		name := attachmentName(part.FileName)
		if det := DetectInvoice(name, part.ContentType, part.Content); !det.IsInvoice {
			out.Skipped = append(out.Skipped, name)
			continue
		}
		if !strings.HasSuffix(strings.ToLower(name), ".json") {
			name += ".json"
		}
		out.Attachments = append(out.Attachments, Attachment{Name: name, Content: part.Content})
	}
	return out, nil
}

func attachmentName(fileName string) string {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return "attachment"
	}
	return name
}
