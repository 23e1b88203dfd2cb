package parser

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/maltedev/offer-scraper/internal/models"
	"github.com/tidwall/gjson"
)

const (
	DefaultDescriptionTimeout = 10 * time.Second

	photoSeparator  = ", "
	detailURLPrefix = "https:"
)

var descriptionPattern = regexp.MustCompile(`\{"content":"(.*)"\}`)

// Normalizer walks a PageState and fans it out into one record per SKU.
type Normalizer struct {
	descriptions       DescriptionSource
	descriptionTimeout time.Duration
	logger             *slog.Logger
}

// NewNormalizer creates a normalizer. descriptions may be nil, in which case every
// offer that links a description gets the fetch-failure placeholder.
func NewNormalizer(descriptions DescriptionSource, descriptionTimeout time.Duration, logger *slog.Logger) *Normalizer {
	if descriptionTimeout <= 0 {
		descriptionTimeout = DefaultDescriptionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Normalizer{
		descriptions:       descriptions,
		descriptionTimeout: descriptionTimeout,
		logger:             logger.With("component", "normalizer"),
	}
}

// Normalize returns one record per entry of the SKU selection module. Offers
// without a selection module yield no records.
func (n *Normalizer) Normalize(ctx context.Context, state models.PageState) []models.Record {
	variants := n.Variants(state)
	if len(variants) == 0 {
		return nil
	}

	base := n.BaseAttributes(ctx, state)

	records := make([]models.Record, 0, len(variants))
	for _, variant := range variants {
		records = append(records, base.Merge(variant))
	}

	return records
}

// BaseAttributes assembles the fields shared by every variant of the offer.
func (n *Normalizer) BaseAttributes(ctx context.Context, state models.PageState) models.BaseAttributes {
	base := models.NewBaseAttributes()

	title := Resolve(
		ModuleLookup(state, ComponentTitle),
		ModuleLookup(state, ComponentTitleGyp),
	).Get("title")
	if t := Resolve(
		func() gjson.Result { return title },
		PathLookup(state.Global, "tempModel.offerTitle"),
	); present(t) {
		base.Title = t.String()
	}

	mainPic := Resolve(
		ModuleLookup(state, ComponentMainPic),
		ModuleLookup(state, ComponentMainPicGyp),
	)
	base.Photos = joinPhotos(mainPic.Get("mainImage"))

	attributes := nameValueMap(state.FindModule(ComponentAttributes))
	if brand, ok := attributes[attrBrand]; ok {
		base.Brand = brand
	}
	if upc, ok := attributes[attrBarcode]; ok {
		base.UPC = upc
	}
	base.Composition = attributes[attrComposition]
	if base.Composition == "" {
		base.Composition = attributes[attrUsage]
	}

	base.Description = n.description(ctx, state)

	return base
}

// Variants builds the per-SKU overlays, matching price and packaging data by skuId.
func (n *Normalizer) Variants(state models.PageState) []models.VariantOverlay {
	selection := Resolve(
		ModuleLookup(state, ComponentSKUSelection),
		ModuleLookup(state, ComponentDSCOrder),
	)

	info := selection.Get("modelSelectionInfo")
	if !info.Exists() {
		return nil
	}

	skuDetails := state.FindModule(ComponentPrice).Get("finalPriceModel.tradeWithoutPromotion.skuMap")
	packages := Resolve(PathLookup(state.FindModule(ComponentCrossBorder), "pieceWeightScale.pieceWeightScaleInfo"))

	var variants []models.VariantOverlay
	info.Get("data").ForEach(func(_, item gjson.Result) bool {
		skuID := item.Get("skuId")
		props := nameValueMap(item.Get("props"))

		variant := models.VariantOverlay{
			SKU:     stringOr(item.Get("name"), models.DefaultSKU),
			Color:   models.DefaultColor,
			Package: models.DefaultPackaging(),
		}
		if color, ok := props[propColor]; ok {
			variant.Color = color
		}

		details := findBySKU(skuDetails, skuID)
		variant.Stock = int(details.Get("canBookCount").Int())
		variant.Price = details.Get("price").Float()

		if pkg := findBySKU(packages, skuID); pkg.Exists() {
			variant.Package = models.Packaging{
				Weight: truncInt(pkg.Get("weight"), models.DefaultPackageWeight),
				Length: truncInt(pkg.Get("length"), models.DefaultPackageLength),
				Width:  truncInt(pkg.Get("width"), models.DefaultPackageWidth),
				Height: truncInt(pkg.Get("height"), models.DefaultPackageHeight),
			}
		}

		variants = append(variants, variant)
		return true
	})

	return variants
}

func (n *Normalizer) description(ctx context.Context, state models.PageState) string {
	detailURL := state.FindModule(ComponentDescription).Get("detailUrl")
	if !present(detailURL) {
		return models.DescriptionNotFound
	}

	if n.descriptions == nil {
		return models.DescriptionFetchError
	}

	ctx, cancel := context.WithTimeout(ctx, n.descriptionTimeout)
	defer cancel()

	url := detailURLPrefix + detailURL.String()
	body, err := n.descriptions.FetchDescription(ctx, url)
	if err != nil {
		n.logger.Warn("could not fetch description", "url", url, "error", err)
		return models.DescriptionFetchError
	}

	matches := descriptionPattern.FindStringSubmatch(body)
	if len(matches) < 2 {
		n.logger.Warn("description payload has no content field", "url", url)
		return models.DescriptionFetchError
	}

	return unescapeDescription(matches[1])
}

func unescapeDescription(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, `\/`, `/`)
}

func joinPhotos(images gjson.Result) string {
	var photos []string
	images.ForEach(func(_, img gjson.Result) bool {
		if uri := img.Get("fullPathImageURI"); present(uri) {
			photos = append(photos, uri.String())
		}
		return true
	})
	return strings.Join(photos, photoSeparator)
}
