package models

import "github.com/tidwall/gjson"

// Module is one entry of the page state. ID is template dependent and must not be
// used for lookup; ComponentType is the stable tag.
type Module struct {
	ID            string
	ComponentType string
	Data          gjson.Result
}

// PageState is the decoded window.__INIT_DATA object. Modules keep document order.
type PageState struct {
	Modules []Module
	Global  gjson.Result
}

func (s PageState) IsEmpty() bool {
	return len(s.Modules) == 0 && !s.Global.Exists()
}

// FindModule returns the data of the first module tagged componentType, or an empty
// result when no module carries that tag. Duplicates after the first are ignored.
func (s PageState) FindModule(componentType string) gjson.Result {
	for _, m := range s.Modules {
		if m.ComponentType != "" && m.ComponentType == componentType {
			return m.Data
		}
	}
	return gjson.Result{}
}
