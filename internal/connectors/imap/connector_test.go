package imap

import (
	"testing"

	"florapricing/internal/config"
)

func TestNewConnector(t *testing.T) {
	cfg := config.Defaults(t.TempDir())
	if _, err := NewConnector(cfg); err == nil {
		t.Fatal("expected missing host error")
	}

	cfg.IMAPHost = "mail.example.com"
	cfg.IMAPUser = "compras"
	cfg.IMAPPassword = "secret"
	cfg.IMAPPort = 1993
	c, err := NewConnector(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if c.addr != "mail.example.com:1993" || !c.secure {
		t.Fatalf("connector=%+v", c)
	}
}
