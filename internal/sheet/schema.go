package sheet

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	ErrUnknownColumn  = errors.New("column is not defined in the product table")
	ErrAutoFillColumn = errors.New("column is filled by the sheet")
	ErrInvalidChoice  = errors.New("value is not an allowed choice")
	ErrInvalidValue   = errors.New("value does not match column type")
)

type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

// Column describes one column of the listing sheet. Index is 1-based.
type Column struct {
	Name     string
	Index    int
	Optional bool
	AutoFill bool
	Kind     Kind
	Choices  []string
}

// Coerce checks value against the column and returns what should be written. nil
// leaves the cell empty.
func (c Column) Coerce(value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch c.Kind {
	case KindInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int32:
			return int(v), nil
		case int64:
			return int(v), nil
		}
	case KindFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		}
	case KindString:
		if s, ok := value.(string); ok {
			if len(c.Choices) > 0 && !(s == "" && c.Optional) && !slices.Contains(c.Choices, s) {
				return nil, fmt.Errorf("%w: %q for %q (allowed %v)", ErrInvalidChoice, s, c.Name, c.Choices)
			}
			return s, nil
		}
	}

	return nil, fmt.Errorf("%w: %q expects %s, got %T", ErrInvalidValue, c.Name, c.Kind, value)
}

// Schema is a set of columns addressable by name.
type Schema struct {
	columns []Column
	byName  map[string]Column
}

func NewSchema(columns []Column) (*Schema, error) {
	s := &Schema{byName: make(map[string]Column, len(columns))}
	indexes := make(map[int]string, len(columns))

	for _, c := range columns {
		if c.Index < 1 {
			return nil, fmt.Errorf("column %q has invalid index %d", c.Name, c.Index)
		}
		if _, dup := s.byName[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", c.Name)
		}
		if other, dup := indexes[c.Index]; dup {
			return nil, fmt.Errorf("columns %q and %q share index %d", other, c.Name, c.Index)
		}
		s.byName[c.Name] = c
		indexes[c.Index] = c.Name
		s.columns = append(s.columns, c)
	}

	sort.Slice(s.columns, func(i, j int) bool { return s.columns[i].Index < s.columns[j].Index })
	return s, nil
}

func (s *Schema) Column(name string) (Column, bool) {
	c, ok := s.byName[name]
	return c, ok
}

// Columns returns the columns ordered by index.
func (s *Schema) Columns() []Column {
	return slices.Clone(s.columns)
}

var (
	listingTypes = []string{"Premium", "Classic"}
	warranty     = []string{"Seller warranty", "Factory warranty", "No warranty"}
	warrantyUnit = []string{"days", "months", "years"}
	genders      = []string{"Woman", "Man", "Girls", "Babies", "Gender neutral", "Boys"}
	weightUnits  = []string{"g", "kg", "lb", "mg", "oz"}
	lengthUnits  = []string{"cm", "ft", "m", "mm"}
)

// ListingColumns is the 40-column marketplace listing layout.
func ListingColumns() []Column {
	cols := []Column{
		{Name: "Title", Index: 1},
		{Name: "Number of characters", Index: 2, AutoFill: true, Kind: KindInt},
		{Name: "SKU", Index: 3, Optional: true},
		{Name: "Color", Index: 4},
		{Name: "Varies in: Size", Index: 5, Optional: true},
		{Name: "Photos", Index: 6},
		{Name: "Universal product code", Index: 7},
		{Name: "Stock", Index: 8, Kind: KindInt},
	}

	for i, market := range []string{"Colombia", "Brazil", "Chile", "Mexico", "Mexico Fulfillment"} {
		base := 9 + i*3
		cols = append(cols,
			Column{Name: "(" + market + ") Price in US$", Index: base, Kind: KindFloat},
			Column{Name: "(" + market + ") Listing type", Index: base + 1, Choices: listingTypes},
			Column{Name: "(" + market + ") Selling Fee in US$", Index: base + 2, AutoFill: true, Kind: KindFloat},
		)
	}

	return append(cols,
		Column{Name: "Description", Index: 24, Optional: true},
		Column{Name: "Warranty type", Index: 25, Optional: true, Choices: warranty},
		Column{Name: "Warranty time", Index: 26, Optional: true, Kind: KindInt},
		Column{Name: "Warranty time unit", Index: 27, Optional: true, Choices: warrantyUnit},
		Column{Name: "Brand", Index: 28},
		Column{Name: "Gender", Index: 29, Choices: genders},
		Column{Name: "Character", Index: 30, Optional: true},
		Column{Name: "Costumes number", Index: 31, Optional: true, Kind: KindInt},
		Column{Name: "Main material", Index: 32, Optional: true},
		Column{Name: "Composition", Index: 33, Optional: true},
		Column{Name: "Accessories included", Index: 34, Optional: true},
		Column{Name: "Package gross weight", Index: 35, Kind: KindInt},
		Column{Name: "Package weight unit", Index: 36, Choices: weightUnits},
		Column{Name: "Package length", Index: 37, Kind: KindInt},
		Column{Name: "Package width", Index: 38, Kind: KindInt},
		Column{Name: "Package height", Index: 39, Kind: KindInt},
		Column{Name: "Package length, width and height unit", Index: 40, Choices: lengthUnits},
	)
}

// DefaultSchema returns the schema of ListingColumns.
func DefaultSchema() *Schema {
	s, err := NewSchema(ListingColumns())
	if err != nil {
		panic(err)
	}
	return s
}
