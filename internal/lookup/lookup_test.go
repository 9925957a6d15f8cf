package lookup

import (
	"os"
	"path/filepath"
	"testing"
)

func sp(v string) *string { return &v }

func TestResolve(t *testing.T) {
	m := New(RuleSet{
		Default: "Coloridas",
		Rules: []Rule{
			{Match: "FREEDOM 70", Product: sp("Freedom 70/80")},
			{Match: "FREEDOM 60", Product: sp("Freedom 60")},
			{Match: "FREEDOM 70", Product: sp("Freedom 50")},
			{Match: "", Product: sp("ignored")},
			{Match: "CAIXA", Product: nil},
			{Match: "CAIXA", Product: sp("Freedom 50")},
		},
	})

	cases := []struct {
		name   string
		raw    *string
		want   string
		wantOK bool
	}{
		{name: "nil skips", raw: nil, want: "", wantOK: false},
		{name: "exact hit", raw: sp("FREEDOM 60"), want: "Freedom 60", wantOK: true},
		{name: "trimmed hit", raw: sp("  FREEDOM 60 \t"), want: "Freedom 60", wantOK: true},
		{name: "first rule wins", raw: sp("FREEDOM 70"), want: "Freedom 70/80", wantOK: true},
		{name: "case sensitive miss", raw: sp("freedom 60"), want: "Coloridas", wantOK: true},
		{name: "empty string defaults", raw: sp(""), want: "Coloridas", wantOK: true},
		{name: "null product skips", raw: sp("CAIXA"), want: "", wantOK: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := m.Resolve(tc.raw)
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("got (%q,%v) want (%q,%v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}
	if n := len(m.Rules()); n != 3 {
		t.Fatalf("rules=%d", n)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depara.json")
	blob := `{"default":"Freedom 50","regras":[{"match":"ROSA VERMELHA","produto":"Freedom 60"},{"match":"FRETE","produto":null}]}`
	if err := os.WriteFile(path, []byte(blob), 0o644); err != nil {
		t.Fatal(err)
	}
	m := Load(path, nil)
	if m.Default() != "Freedom 50" {
		t.Fatalf("default=%q", m.Default())
	}
	if got, _ := m.Resolve(sp("ROSA VERMELHA")); got != "Freedom 60" {
		t.Fatalf("got %q", got)
	}
	if got, _ := m.Resolve(sp("OUTRA")); got != "Freedom 50" {
		t.Fatalf("got %q", got)
	}
	if got, ok := m.Resolve(sp("FRETE")); ok {
		t.Fatalf("null rule resolved to %q", got)
	}
}

func TestLoadDegrades(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"default": "X", "regras": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	noDefault := filepath.Join(dir, "nodefault.json")
	if err := os.WriteFile(noDefault, []byte(`{"regras": []}`), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{filepath.Join(dir, "missing.json"), bad, noDefault} {
		m := Load(path, nil)
		if m.Default() != DefaultProduct {
			t.Fatalf("%s: default=%q", path, m.Default())
		}
		if len(m.Rules()) != 0 {
			t.Fatalf("%s: rules=%d", path, len(m.Rules()))
		}
		if got, ok := m.Resolve(sp("ANYTHING")); !ok || got != DefaultProduct {
			t.Fatalf("%s: got %q", path, got)
		}
	}
}
