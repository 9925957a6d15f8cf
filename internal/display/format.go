package display

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"florapricing/internal"
)

var Columns = []string{
	"Produto",
	"Núm. de hastes",
	"Subtotal do invoice",
	"Cotação do dólar",
	"Preço",
	"Custos de operação",
	"Total",
}

// Row is a final table row as shown to the user.
type Row struct {
	Product         string `json:"product"`
	Stems           string `json:"stems"`
	Subtotal        string `json:"subtotal"`
	ExchangeRate    string `json:"exchange_rate"`
	Price           string `json:"price"`
	OperationalCost string `json:"operational_cost"`
	TotalPerStem    string `json:"total_per_stem"`
}

func (r Row) Cells() []string {
	return []string{r.Product, r.Stems, r.Subtotal, r.ExchangeRate, r.Price, r.OperationalCost, r.TotalPerStem}
}

var printer = message.NewPrinter(language.BrazilianPortuguese)

func Format(rows []internal.FinalRow) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, Row{
			Product:         r.Product,
			Stems:           strconv.FormatInt(r.TotalStems, 10),
			Subtotal:        FormatUSD(r.Subtotal),
			ExchangeRate:    FormatBRL(r.ExchangeRate),
			Price:           FormatBRL(r.Price),
			OperationalCost: FormatBRL(r.OperationalCost),
			TotalPerStem:    "R$ " + formatNumber(r.TotalPerStem, 4),
		})
	}
	return out
}

func FormatBRL(v decimal.Decimal) string {
	return "R$ " + formatNumber(v, 2)
}

func FormatUSD(v decimal.Decimal) string {
	return "$ " + formatNumber(v, 2)
}

func formatNumber(v decimal.Decimal, places int32) string {
	f, _ := v.Round(places).Float64()
	return printer.Sprintf(fmt.Sprintf("%%.%df", places), f)
}

// ParseBRL reads a money cell typed by the user ("R$ 1.234,56", "25,5").
// Dots are thousands separators and the comma is the decimal point;
// anything unparseable is 0.
func ParseBRL(text string) decimal.Decimal {
	s := strings.TrimSpace(text)
	for _, sym := range []string{"R$", "$"} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", ".", "").Replace(s)
	s = strings.ReplaceAll(s, ",", ".")
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}
