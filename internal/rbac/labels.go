package rbac

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Option is a value/label pair used by listings.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var titleCaser = cases.Title(language.English)

// acronyms keep their upper-case spelling in labels.
var acronyms = map[string]string{
	"Tb":     "TB",
	"Ota":    "OTA",
	"Rpc":    "RPC",
	"Oauth2": "OAuth2",
	"Ai":     "AI",
	"Api":    "API",
}

func label(value string) string {
	if value == "ALL" {
		return "All"
	}
	words := strings.Fields(titleCaser.String(strings.ReplaceAll(value, "_", " ")))
	for i, w := range words {
		if a, ok := acronyms[w]; ok {
			words[i] = a
		}
	}
	return strings.Join(words, " ")
}

// Label returns a human readable name, e.g. "Rule Chain".
func (r Resource) Label() string { return label(string(r)) }

// Label returns a human readable name, e.g. "Read Telemetry".
func (o Operation) Label() string { return label(string(o)) }

// ResourceOptions lists resources with labels in declaration order.
func ResourceOptions() []Option {
	out := make([]Option, len(resources))
	for i, r := range resources {
		out[i] = Option{Value: string(r), Label: r.Label()}
	}
	return out
}

// OperationOptions lists operations with labels in declaration order.
func OperationOptions() []Option {
	out := make([]Option, len(operations))
	for i, o := range operations {
		out[i] = Option{Value: string(o), Label: o.Label()}
	}
	return out
}
