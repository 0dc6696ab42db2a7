package fetch

import (
	"net/url"
	"strings"
)

const (
	// DefaultTargetURL is the upstream page holding the schedule table
	DefaultTargetURL = "http://3aic.ru/"

	// targetPlaceholder marks where the upstream address goes in a template
	targetPlaceholder = "{target}"
)

// Strategy describes one way of retrieving the upstream page
type Strategy struct {
	Label string
	URL   string
	// EnvelopeField, when set, names the JSON field that carries the page body
	EnvelopeField string
}

// Template describes a strategy before the upstream address is substituted
type Template struct {
	Label         string
	Pattern       string // contains {target}; a bare pattern is used as-is
	Escape        bool   // query-escape the target before substitution
	EnvelopeField string
}

// Expand substitutes target into the template
func (t Template) Expand(target string) Strategy {
	value := target
	if t.Escape {
		value = url.QueryEscape(target)
	}
	return Strategy{
		Label:         t.Label,
		URL:           strings.ReplaceAll(t.Pattern, targetPlaceholder, value),
		EnvelopeField: t.EnvelopeField,
	}
}

// ExpandAll expands templates in priority order
func ExpandAll(target string, templates []Template) []Strategy {
	strategies := make([]Strategy, 0, len(templates))
	for _, t := range templates {
		strategies = append(strategies, t.Expand(target))
	}
	return strategies
}

// DefaultTemplates returns the direct fetch followed by the public relays, in priority order
func DefaultTemplates() []Template {
	return []Template{
		{Label: "direct", Pattern: targetPlaceholder},
		{Label: "corsproxy.io", Pattern: "https://corsproxy.io/?" + targetPlaceholder, Escape: true},
		{Label: "codetabs", Pattern: "https://api.codetabs.com/v1/proxy?quest=" + targetPlaceholder, Escape: true},
		{Label: "proxy.cors.sh", Pattern: "https://proxy.cors.sh/" + targetPlaceholder},
		{Label: "allorigins-raw", Pattern: "https://api.allorigins.win/raw?url=" + targetPlaceholder, Escape: true},
		{Label: "allorigins-get", Pattern: "https://api.allorigins.win/get?url=" + targetPlaceholder, Escape: true, EnvelopeField: "contents"},
		{Label: "corsproxy.org", Pattern: "https://corsproxy.org/?" + targetPlaceholder, Escape: true},
	}
}
