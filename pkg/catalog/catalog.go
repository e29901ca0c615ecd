package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
	"wessbooks/pkg/domain"
)

//go:embed books.yaml
var defaultBooks []byte

var ErrInvalidCatalog = errors.New("invalid catalog")

type file struct {
	Books []domain.CatalogItem `yaml:"books"`
}

// Catalog is an immutable, ordered list of books.
type Catalog struct {
	items   []domain.CatalogItem
	byID    map[int]int
	byTitle map[string]int
}

// Default returns the compiled-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultBooks)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidCatalog, err)
	}
	if len(doc.Books) == 0 {
		return nil, fmt.Errorf("%w: no books", ErrInvalidCatalog)
	}
	c := &Catalog{
		items:   doc.Books,
		byID:    make(map[int]int, len(doc.Books)),
		byTitle: make(map[string]int, len(doc.Books)),
	}
	for i, item := range doc.Books {
		if strings.TrimSpace(item.Title) == "" {
			return nil, fmt.Errorf("%w: book %d has no title", ErrInvalidCatalog, item.ID)
		}
		if item.Price < 0 {
			return nil, fmt.Errorf("%w: %q has a negative price", ErrInvalidCatalog, item.Title)
		}
		if _, dup := c.byID[item.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidCatalog, item.ID)
		}
		if _, dup := c.byTitle[item.Title]; dup {
			return nil, fmt.Errorf("%w: duplicate title %q", ErrInvalidCatalog, item.Title)
		}
		c.byID[item.ID] = i
		c.byTitle[item.Title] = i
	}
	return c, nil
}

// Items returns a copy of the books in catalog order.
func (c *Catalog) Items() []domain.CatalogItem {
	out := make([]domain.CatalogItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog) ByID(id int) (domain.CatalogItem, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.CatalogItem{}, false
	}
	return c.items[i], true
}

func (c *Catalog) ByTitle(title string) (domain.CatalogItem, bool) {
	i, ok := c.byTitle[title]
	if !ok {
		return domain.CatalogItem{}, false
	}
	return c.items[i], true
}
