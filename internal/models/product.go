package models

// Column names of the listing sheet. Record.Values keys its output by these.
const (
	ColTitle         = "Title"
	ColSKU           = "SKU"
	ColColor         = "Color"
	ColPhotos        = "Photos"
	ColUPC           = "Universal product code"
	ColStock         = "Stock"
	ColPriceColombia = "(Colombia) Price in US$"
	ColListingType   = "(Colombia) Listing type"
	ColDescription   = "Description"
	ColWarrantyType  = "Warranty type"
	ColBrand         = "Brand"
	ColGender        = "Gender"
	ColComposition   = "Composition"
	ColPackageWeight = "Package gross weight"
	ColWeightUnit    = "Package weight unit"
	ColPackageLength = "Package length"
	ColPackageWidth  = "Package width"
	ColPackageHeight = "Package height"
	ColDimensionUnit = "Package length, width and height unit"
)

// Fallback values used when a field cannot be resolved from the page.
const (
	DefaultTitle          = "Title Not Found"
	DefaultBrand          = "N/A"
	DefaultUPC            = "Not Available"
	DefaultSKU            = "N/A"
	DefaultColor          = "N/A"
	DescriptionNotFound   = "Description not found."
	DescriptionFetchError = "Could not fetch description."

	DefaultPackageWeight = 100
	DefaultPackageLength = 10
	DefaultPackageWidth  = 10
	DefaultPackageHeight = 10
)

// Fixed listing metadata shared by every record.
const (
	ListingTypeClassic = "Classic"
	WarrantyNone       = "No warranty"
	GenderNeutral      = "Gender neutral"
	WeightUnitGram     = "g"
	DimensionUnitCenti = "cm"
)

// BaseAttributes holds the fields shared by all variants of one offer.
type BaseAttributes struct {
	OfferID       string `json:"offer_id,omitempty"`
	Title         string `json:"title"`
	Photos        string `json:"photos"`
	UPC           string `json:"upc"`
	Description   string `json:"description"`
	Brand         string `json:"brand"`
	Composition   string `json:"composition"`
	ListingType   string `json:"listing_type"`
	WarrantyType  string `json:"warranty_type"`
	Gender        string `json:"gender"`
	WeightUnit    string `json:"weight_unit"`
	DimensionUnit string `json:"dimension_unit"`
}

// Packaging is the cross-border package size of one SKU.
type Packaging struct {
	Weight int `json:"weight"`
	Length int `json:"length"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// VariantOverlay holds the per-SKU fields.
type VariantOverlay struct {
	SKU     string    `json:"sku"`
	Color   string    `json:"color"`
	Stock   int       `json:"stock"`
	Price   float64   `json:"price"`
	Package Packaging `json:"package"`
}

// Record is one sheet row: the base attributes of an offer merged with one variant.
type Record struct {
	BaseAttributes
	VariantOverlay
}

func NewBaseAttributes() BaseAttributes {
	return BaseAttributes{
		Title:         DefaultTitle,
		Brand:         DefaultBrand,
		UPC:           DefaultUPC,
		Description:   DescriptionNotFound,
		ListingType:   ListingTypeClassic,
		WarrantyType:  WarrantyNone,
		Gender:        GenderNeutral,
		WeightUnit:    WeightUnitGram,
		DimensionUnit: DimensionUnitCenti,
	}
}

func DefaultPackaging() Packaging {
	return Packaging{
		Weight: DefaultPackageWeight,
		Length: DefaultPackageLength,
		Width:  DefaultPackageWidth,
		Height: DefaultPackageHeight,
	}
}

// AssignOffer stamps the source offer id on every record.
func AssignOffer(records []Record, offerID string) {
	for i := range records {
		records[i].OfferID = offerID
	}
}

// Merge overlays a variant onto a copy of the base attributes.
func (b BaseAttributes) Merge(v VariantOverlay) Record {
	return Record{BaseAttributes: b, VariantOverlay: v}
}

// Values flattens the record into column name -> primitive value.
func (r Record) Values() map[string]any {
	return map[string]any{
		ColTitle:         r.Title,
		ColPhotos:        r.Photos,
		ColUPC:           r.UPC,
		ColDescription:   r.Description,
		ColBrand:         r.Brand,
		ColComposition:   r.Composition,
		ColListingType:   r.ListingType,
		ColWarrantyType:  r.WarrantyType,
		ColGender:        r.Gender,
		ColWeightUnit:    r.WeightUnit,
		ColDimensionUnit: r.DimensionUnit,
		ColSKU:           r.SKU,
		ColColor:         r.Color,
		ColStock:         r.Stock,
		ColPriceColombia: r.Price,
		ColPackageWeight: r.Package.Weight,
		ColPackageLength: r.Package.Length,
		ColPackageWidth:  r.Package.Width,
		ColPackageHeight: r.Package.Height,
	}
}

func (p Packaging) IsValid() bool {
	return p.Weight > 0 && p.Length > 0 && p.Width > 0 && p.Height > 0
}

// Validate reports required fields that only hold their fallback value.
func (r Record) Validate() []string {
	var problems []string

	if r.Title == "" || r.Title == DefaultTitle {
		problems = append(problems, "Title is missing")
	}

	if r.Photos == "" {
		problems = append(problems, "Photos are missing")
	}

	if r.Color == "" || r.Color == DefaultColor {
		problems = append(problems, "Color is missing")
	}

	if r.Price <= 0 {
		problems = append(problems, "Price is missing")
	}

	if !r.Package.IsValid() {
		problems = append(problems, "Invalid package dimensions")
	}

	return problems
}
