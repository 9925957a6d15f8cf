package display

import (
	"errors"
	"html/template"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var ErrNoTable = errors.New("no table found")

var tableTemplate = template.Must(template.New("table").Parse(`<table id="result-table">
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr>{{range .Cells}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
`))

func RenderHTML(w io.Writer, rows []Row) error {
	return tableTemplate.Execute(w, struct {
		Columns []string
		Rows    []Row
	}{Columns: Columns, Rows: rows})
}

// ReadHTML reads back a (possibly user-edited) table. Columns are located by
// header text, so their order does not matter.
func ReadHTML(r io.Reader) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	rows := table.Find("tr")
	if rows.Length() == 0 {
		return nil, ErrNoTable
	}
	headers := []string{}
	rows.First().Find("th,td").Each(func(_ int, cell *goquery.Selection) {
		headers = append(headers, strings.TrimSpace(cell.Text()))
	})
	col := columnIndex(headers)
	if col["Produto"] < 0 {
		return nil, errors.New("table has no Produto column")
	}

	out := []Row{}
	rows.Slice(1, goquery.ToEnd).Each(func(_ int, tr *goquery.Selection) {
		cells := []string{}
		tr.Find("td,th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) == 0 {
			return
		}
		pick := func(name string) string {
			i := col[name]
			if i < 0 || i >= len(cells) {
				return ""
			}
			return cells[i]
		}
		out = append(out, Row{
			Product:         pick("Produto"),
			Stems:           pick("Núm. de hastes"),
			Subtotal:        pick("Subtotal do invoice"),
			ExchangeRate:    pick("Cotação do dólar"),
			Price:           pick("Preço"),
			OperationalCost: pick("Custos de operação"),
			TotalPerStem:    pick("Total"),
		})
	})
	return out, nil
}

func columnIndex(headers []string) map[string]int {
	col := map[string]int{}
	for _, name := range Columns {
		col[name] = -1
		for i, h := range headers {
			if strings.EqualFold(h, name) {
				col[name] = i
				break
			}
		}
	}
	return col
}
