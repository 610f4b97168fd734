package domain

// FieldKind is the comparison type of a filterable field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
)

// Field describes a product attribute that list queries may filter on.
// Path is the attribute's location inside the stored document.
type Field struct {
	Name string
	Kind FieldKind
	Path []string
}

// FilterableFields is the allow-list of filter keys. Any other key in a
// list query is ignored.
var FilterableFields = map[string]Field{
	"name":            {Name: "name", Kind: KindString, Path: []string{"name"}},
	"category":        {Name: "category", Kind: KindString, Path: []string{"category"}},
	"brand":           {Name: "brand", Kind: KindString, Path: []string{"brand", "name"}},
	"price":           {Name: "price", Kind: KindNumber, Path: []string{"price"}},
	"cutted_price":    {Name: "cutted_price", Kind: KindNumber, Path: []string{"cutted_price"}},
	"stock":           {Name: "stock", Kind: KindNumber, Path: []string{"stock"}},
	"warranty":        {Name: "warranty", Kind: KindNumber, Path: []string{"warranty"}},
	"ratings_average": {Name: "ratings_average", Kind: KindNumber, Path: []string{"ratings_average"}},
	"review_count":    {Name: "review_count", Kind: KindNumber, Path: []string{"review_count"}},
}

// LookupField returns the allow-listed field named name.
func LookupField(name string) (Field, bool) {
	f, ok := FilterableFields[name]
	return f, ok
}

// Value returns the value of an allow-listed field on p: a string for
// KindString fields and a float64 for KindNumber fields.
func (p *Product) Value(field string) (any, bool) {
	switch field {
	case "name":
		return p.Name, true
	case "category":
		return p.Category, true
	case "brand":
		return p.Brand.Name, true
	case "price":
		return p.Price, true
	case "cutted_price":
		return p.CuttedPrice, true
	case "stock":
		return float64(p.Stock), true
	case "warranty":
		return float64(p.Warranty), true
	case "ratings_average":
		return p.RatingsAverage, true
	case "review_count":
		return float64(p.ReviewCount), true
	default:
		return nil, false
	}
}
