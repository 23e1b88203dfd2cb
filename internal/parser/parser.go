package parser

import (
	"context"

	"github.com/maltedev/offer-scraper/internal/models"
)

// Parser turns one fetched offer page into sheet records. A page that yields no
// usable data returns an empty slice, never an error.
type Parser interface {
	Extract(ctx context.Context, document string) []models.Record
}

// DescriptionSource performs the secondary fetch of the offer description payload.
type DescriptionSource interface {
	FetchDescription(ctx context.Context, url string) (string, error)
}

// Component types of the page modules the normalizer reads.
const (
	ComponentTitle        = "@ali/tdmod-od-pc-offer-title"
	ComponentTitleGyp     = "@ali/tdmod-od-gyp-pc-offer-title"
	ComponentMainPic      = "@ali/tdmod-pc-od-main-pic"
	ComponentMainPicGyp   = "@ali/tdmod-od-gyp-pc-main-pic"
	ComponentAttributes   = "@ali/tdmod-od-pc-attribute-new"
	ComponentCrossBorder  = "@ali/tdmod-od-pc-offer-cross"
	ComponentDescription  = "@ali/tdmod-od-pc-offer-description"
	ComponentSKUSelection = "@ali/tdmod-gyp-pc-sku-selection"
	ComponentDSCOrder     = "@ali/tdmod-pc-od-dsc-order"
	ComponentPrice        = "@ali/tdmod-od-pc-offer-price"
)

// Attribute names as they appear on the page.
const (
	attrBrand       = "品牌"
	attrComposition = "成分及含量"
	attrUsage       = "主要用途"
	attrBarcode     = "商品条形码"
	propColor       = "颜色"
)
