package parser

import (
	"github.com/maltedev/offer-scraper/internal/models"
	"github.com/tidwall/gjson"
)

// Lookup is one candidate source for a field.
type Lookup func() gjson.Result

// Resolve tries each lookup in order and returns the first non-empty result.
// The order of the lookups is the precedence between page templates.
func Resolve(lookups ...Lookup) gjson.Result {
	for _, lookup := range lookups {
		if r := lookup(); present(r) {
			return r
		}
	}
	return gjson.Result{}
}

// ModuleLookup reads the data of the first module tagged componentType.
func ModuleLookup(state models.PageState, componentType string) Lookup {
	return func() gjson.Result {
		return state.FindModule(componentType)
	}
}

// PathLookup reads a dotted gjson path below r.
func PathLookup(r gjson.Result, path string) Lookup {
	return func() gjson.Result {
		return r.Get(path)
	}
}

// present reports whether r holds a usable value. Missing, null, false, zero, empty
// strings and empty containers all count as absent.
func present(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	case gjson.JSON:
		found := false
		r.ForEach(func(_, _ gjson.Result) bool {
			found = true
			return false
		})
		return found
	}
	return true
}

func stringOr(r gjson.Result, fallback string) string {
	if !r.Exists() || r.Type == gjson.Null {
		return fallback
	}
	return r.String()
}

// truncInt coerces a numeric or numeric-string value through float64 and drops the
// fractional part, so 149.9 becomes 149.
func truncInt(r gjson.Result, fallback int) int {
	if !r.Exists() || r.Type == gjson.Null {
		return fallback
	}
	return int(r.Float())
}

// nameValueMap builds name -> value from a list of {name, value} objects. Entries
// missing either key are skipped; a later duplicate name overwrites an earlier one.
func nameValueMap(list gjson.Result) map[string]string {
	values := make(map[string]string)
	if !list.IsArray() {
		return values
	}

	list.ForEach(func(_, entry gjson.Result) bool {
		name, value := entry.Get("name"), entry.Get("value")
		if name.Exists() && value.Exists() {
			values[name.String()] = value.String()
		}
		return true
	})

	return values
}

// findBySKU returns the first entry of list whose skuId equals skuID. An entry
// without a skuId matches nothing, not even rows that also lack one.
func findBySKU(list, skuID gjson.Result) gjson.Result {
	if !skuID.Exists() || !list.IsArray() {
		return gjson.Result{}
	}

	var match gjson.Result
	list.ForEach(func(_, entry gjson.Result) bool {
		if sameValue(entry.Get("skuId"), skuID) {
			match = entry
			return false
		}
		return true
	})

	return match
}

func sameValue(a, b gjson.Result) bool {
	if !a.Exists() || !b.Exists() || a.Type != b.Type {
		return false
	}
	if a.Type == gjson.Number {
		return a.Raw == b.Raw || a.Num == b.Num
	}
	return a.String() == b.String()
}
