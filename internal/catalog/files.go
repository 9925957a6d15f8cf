package catalog

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
)

var (
	FallbackProducts  = []string{"Freedom 70/80", "Freedom 60", "Freedom 50", "Coloridas"}
	FallbackSuppliers = []string{"flores_prisma"}
)

type productsFile struct {
	Products []struct {
		Name string `json:"nome"`
	} `json:"produtos"`
}

type suppliersFile struct {
	Suppliers []struct {
		ID string `json:"id"`
	} `json:"fornecedores"`
}

// LoadProducts returns the canonical catalog in display order, or the
// built-in list when the file is missing, malformed or empty.
func LoadProducts(path string) []string {
	var file productsFile
	if err := readJSON(path, &file); err != nil {
		slog.Debug("products file unavailable, using fallback catalog", "path", path, "error", err)
		return fallback(FallbackProducts)
	}
	out := make([]string, 0, len(file.Products))
	for _, p := range file.Products {
		if strings.TrimSpace(p.Name) != "" {
			out = append(out, p.Name)
		}
	}
	if len(out) == 0 {
		return fallback(FallbackProducts)
	}
	return out
}

func LoadSuppliers(path string) []string {
	var file suppliersFile
	if err := readJSON(path, &file); err != nil {
		slog.Debug("suppliers file unavailable, using fallback list", "path", path, "error", err)
		return fallback(FallbackSuppliers)
	}
	out := make([]string, 0, len(file.Suppliers))
	for _, s := range file.Suppliers {
		if strings.TrimSpace(s.ID) != "" {
			out = append(out, s.ID)
		}
	}
	if len(out) == 0 {
		return fallback(FallbackSuppliers)
	}
	return out
}

func readJSON(path string, v any) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(blob, v)
}

func fallback(list []string) []string {
	out := make([]string, len(list))
	copy(out, list)
	return out
}
