package supplier

import (
	"log/slog"

	"florapricing/internal/lookup"
)

const FloresPrismaID = "flores_prisma"

var floresPrismaLayout = Layout{
	Product:       "nm_product",
	StemsPerBunch: "nu_stems_bunch",
	Bunches:       "nu_bunches",
	Rate:          "mny_rate_stem",
}

func NewFloresPrisma(rulesPath string, logger *slog.Logger) Parser {
	mapper := lookup.Load(rulesPath, logger)
	if logger != nil {
		logger.Debug("lookup rules loaded", "path", rulesPath, "rules", len(mapper.Rules()), "default", mapper.Default())
	}
	return NewJSONInvoiceParser(floresPrismaLayout, mapper)
}
