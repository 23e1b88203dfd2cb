package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/maltedev/offer-scraper/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// module renders one entry of the __INIT_DATA data object.
func module(componentType, data string) string {
	return fmt.Sprintf(`{"componentType":%q,"data":%s}`, componentType, data)
}

// payload assembles an __INIT_DATA object with numeric module ids in argument order.
func payload(global string, modules ...string) string {
	entries := make([]string, 0, len(modules))
	for i, m := range modules {
		entries = append(entries, fmt.Sprintf(`"%d":%s`, 1081181309580+i, m))
	}
	if global == "" {
		global = "{}"
	}
	return fmt.Sprintf(`{"data":{%s},"globalData":%s}`, strings.Join(entries, ","), global)
}

// offerPage wraps a payload into a minimal offer page, compacted onto one line the
// way the live pages serve it.
func offerPage(t *testing.T, raw string) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.Compact(&buf, []byte(raw)))

	return `<!DOCTYPE html><html><head><title>offer</title>
<script>window.dataLayer = [];</script>
<script>window.__INIT_DATA=` + buf.String() + `;</script>
</head><body><div id="app"></div></body></html>`
}

func stateOf(t *testing.T, raw string) models.PageState {
	t.Helper()
	require.True(t, gjson.Valid(raw), "test payload must be valid JSON")
	return decodeState(gjson.Parse(raw))
}

type fakeDescriptions struct {
	mu    sync.Mutex
	body  string
	err   error
	block bool
	urls  []string
}

func (f *fakeDescriptions) FetchDescription(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.body, f.err
}

func (f *fakeDescriptions) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

const (
	titleModule   = `{"title":"T-Shirt"}`
	mainPicModule = `{"mainImage":[{"fullPathImageURI":"uri1"},{"fullPathImageURI":""},{"fullPathImageURI":"uri2"}]}`

	selectionModule = `{"modelSelectionInfo":{"data":[
		{"name":"Red","skuId":1,"props":[{"name":"颜色","value":"Red"}]},
		{"name":"Blue","skuId":2,"props":[{"name":"颜色","value":"Blue"}]}
	]}}`

	priceModule = `{"finalPriceModel":{"tradeWithoutPromotion":{"skuMap":[
		{"skuId":1,"price":9.99,"canBookCount":50}
	]}}}`
)
