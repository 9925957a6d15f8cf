package catalog

// Index gives each catalog product its display position.
type Index struct {
	Products   []string
	PositionOf map[string]int
}

func BuildIndex(products []string) *Index {
	idx := &Index{
		Products:   make([]string, 0, len(products)),
		PositionOf: map[string]int{},
	}
	for _, p := range products {
		if _, dup := idx.PositionOf[p]; dup {
			continue
		}
		idx.PositionOf[p] = len(idx.Products)
		idx.Products = append(idx.Products, p)
	}
	return idx
}

func (idx *Index) Position(product string) (int, bool) {
	pos, ok := idx.PositionOf[product]
	return pos, ok
}

func (idx *Index) Len() int {
	return len(idx.Products)
}
