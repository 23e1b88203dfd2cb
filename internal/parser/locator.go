package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/offer-scraper/internal/models"
	"github.com/tidwall/gjson"
)

const initDataMarker = "window.__INIT_DATA"

var initDataPattern = regexp.MustCompile(`window\.__INIT_DATA\s*=\s*(\{.*\});`)

var (
	ErrPayloadNotFound  = errors.New("init data payload not found")
	ErrPayloadMalformed = errors.New("init data payload malformed")
)

// Locate isolates the window.__INIT_DATA object of an offer page. On any failure it
// returns an empty PageState together with a diagnostic error; callers are expected
// to log it and move on.
func Locate(document string) (models.PageState, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return models.PageState{}, fmt.Errorf("%w: failed to parse HTML: %v", ErrPayloadNotFound, err)
	}

	var script string
	doc.Find("script").EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, initDataMarker) {
			script = text
			return false
		}
		return true
	})

	if script == "" {
		return models.PageState{}, fmt.Errorf("%w: no script tag contains %s", ErrPayloadNotFound, initDataMarker)
	}

	matches := initDataPattern.FindStringSubmatch(script)
	if len(matches) < 2 {
		return models.PageState{}, fmt.Errorf("%w: could not extract object assignment", ErrPayloadNotFound)
	}

	raw := matches[1]
	if !gjson.Valid(raw) {
		return models.PageState{}, fmt.Errorf("%w: invalid JSON (%d bytes)", ErrPayloadMalformed, len(raw))
	}

	return decodeState(gjson.Parse(raw)), nil
}

func decodeState(root gjson.Result) models.PageState {
	state := models.PageState{
		Global: root.Get("globalData"),
	}

	root.Get("data").ForEach(func(key, value gjson.Result) bool {
		module := models.Module{ID: key.String()}
		if value.IsObject() {
			if ct := value.Get("componentType"); ct.Type == gjson.String {
				module.ComponentType = ct.String()
			}
			module.Data = value.Get("data")
		}
		state.Modules = append(state.Modules, module)
		return true
	})

	return state
}
