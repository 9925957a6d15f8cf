package internal

import (
	"errors"
	"strings"
	"testing"
)

func TestDocumentResultLog(t *testing.T) {
	cases := []struct {
		name string
		res  DocumentResult
		want string
	}{
		{name: "ok", res: DocumentResult{File: "a.json", Supplier: "flores_prisma", Status: DocumentOK, Items: 3, Stems: 75}, want: "ok: a.json processed (flores_prisma) items=3 stems=75"},
		{name: "skipped", res: DocumentResult{File: "b.json", Status: DocumentSkipped}, want: "skipped: b.json"},
		{name: "failed", res: DocumentResult{File: "c.json", Supplier: "x", Status: DocumentFailed, Err: errors.New("boom")}, want: "error: c.json (x): boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.res.Log(); !strings.EqualFold(got, tc.want) {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}
