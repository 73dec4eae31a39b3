// Package imagery picks an illustration for a news headline by mapping
// keywords to visual concepts and building a stock-photo search URL.
package imagery

import (
	"errors"
	"net/url"
	"slices"
	"strings"
)

// DefaultBaseURL is the featured-image search endpoint.
const DefaultBaseURL = "https://source.unsplash.com/featured/800x600/"

// ErrEmptyHeadline is returned when there is nothing to look up.
var ErrEmptyHeadline = errors.New("imagery: empty headline and keywords")

type association struct {
	keyword string
	concept string
}

// associations are matched as substrings of the lowercased text, in order.
var associations = []association{
	{"surge", "positive"}, {"rallies", "positive"}, {"growth", "positive"}, {"cheers", "positive"},
	{"groundbreaking", "positive"}, {"breakthrough", "positive"}, {"success", "positive"}, {"approval", "positive"},
	{"boom", "positive"}, {"peace", "positive"}, {"wins", "positive"}, {"deal", "positive"}, {"unveils", "positive"},
	{"soars", "positive"}, {"gains", "positive"}, {"momentum", "positive"}, {"expansion", "positive"},
	{"innovation", "innovation"}, {"upgrade", "positive"}, {"accelerates", "positive"}, {"benefits", "positive"},
	{"rise", "positive"},
	{"plummet", "negative"}, {"tumbles", "negative"}, {"headwinds", "negative"}, {"drops", "negative"},
	{"warning", "negative"}, {"fears", "negative"}, {"concern", "negative"}, {"failure", "negative"},
	{"breach", "negative"}, {"recall", "negative"}, {"recession", "recession"}, {"war", "negative"},
	{"pandemic", "negative"}, {"scandal", "negative"}, {"uncertainty", "negative"}, {"shutdown", "negative"},
	{"damage", "negative"}, {"disrupting", "negative"}, {"strikes", "negative"}, {"anxious", "negative"},
	{"looms", "negative"}, {"pressure", "negative"}, {"delay", "negative"}, {"downfall", "negative"},
	{"outage", "negative"}, {"cuts", "negative"}, {"sanctions", "negative"}, {"threat", "negative"},
	{"crisis", "negative"}, {"plagued", "negative"}, {"suffers", "negative"},
	{"split", "split"},
	{"chip", "Technology"}, {"ai", "Technology"}, {"software", "Technology"}, {"cyber", "Technology"},
	{"data", "Technology"}, {"cloud", "Technology"}, {"quantum", "Technology"}, {"internet", "Technology"},
	{"robotics", "Technology"}, {"tech", "Technology"}, {"digital", "Technology"}, {"platform", "Technology"},
	{"fda", "Health"}, {"drug", "Health"}, {"health", "Health"}, {"medical", "Health"}, {"pharma", "Health"},
	{"clinic", "Health"}, {"genomics", "Health"}, {"therapy", "Health"}, {"vaccine", "Health"},
	{"hospital", "Health"}, {"wellness", "Health"},
	{"energy", "Energy"}, {"solar", "Energy"}, {"oil", "Energy"}, {"efficiency", "Energy"}, {"subsidy", "Energy"},
	{"hydro", "Energy"}, {"wind", "Energy"}, {"nuclear", "Energy"}, {"battery", "Energy"}, {"grid", "Energy"},
	{"carbon", "Energy"},
	{"finance", "Finance"}, {"earnings", "Finance"}, {"fintech", "Finance"}, {"rate", "Finance"},
	{"rating", "Finance"}, {"bank", "Finance"}, {"insurance", "Finance"}, {"lend", "Finance"},
	{"trade", "Finance"}, {"invest", "Finance"}, {"funds", "Finance"}, {"ipo", "Finance"},
	{"industrials", "Industrials"}, {"contract", "Industrials"}, {"supply", "Industrials"},
	{"factory", "Industrials"}, {"logistics", "Industrials"}, {"aero", "Industrials"}, {"ship", "Industrials"},
	{"build", "Industrials"}, {"auto", "Industrials"}, {"rail", "Industrials"}, {"manufacturing", "Industrials"},
	{"infrastructure", "Industrials"}, {"commodity", "Industrials"},
	{"global", "macro"}, {"market", "macro"}, {"economy", "macro"}, {"macroeconomic", "macro"}, {"world", "macro"},
	{"political", "political"}, {"election", "political"}, {"government", "political"}, {"policy", "political"},
	{"regulations", "political"},
	{"hurricane", "disaster"}, {"earthquake", "disaster"}, {"wildfires", "disaster"}, {"natural", "disaster"},
	{"storm", "disaster"}, {"famine", "disaster"},
	{"routine", "neutral"}, {"minor", "neutral"}, {"update", "update"}, {"reshuffle", "neutral"},
	{"meeting", "neutral"}, {"stable", "stability"}, {"engagement", "neutral"}, {"renovation", "neutral"},
	{"renewal", "neutral"}, {"personnel", "neutral"}, {"audit", "neutral"}, {"showcase", "neutral"},
	{"review", "neutral"}, {"dialogue", "neutral"}, {"adjustment", "neutral"},
}

var priorities = map[string]int{
	"political": 5, "disaster": 5, "recession": 5, "growth": 5,
	"macro": 4, "innovation": 4, "merger": 4, "alliance": 4,
	"sector": 3, "sentiment": 2, "stability": 2, "update": 2,
	"action": 1, "neutral": 1,
}

var (
	eventConcepts = []string{"political", "disaster", "recession", "growth", "innovation", "merger", "alliance"}
	sectors       = []string{"Technology", "Health", "Energy", "Finance", "Industrials"}
	sentiments    = []string{"positive", "negative", "neutral"}
	abstract      = []string{"positive", "negative", "neutral", "default", "update", "stability", "recession", "growth", "action", "sentiment", "split"}
)

// Lookup builds image URLs. The zero value is not usable; use New.
type Lookup struct {
	base string
}

// New returns a Lookup against baseURL, or DefaultBaseURL when empty.
func New(baseURL string) *Lookup {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Lookup{base: baseURL}
}

// Lookup returns an image URL for headline, guided by keyword hints such
// as the sector, the event type and the counterpart name.
func (l *Lookup) Lookup(headline string, keywords ...string) (string, error) {
	if strings.TrimSpace(headline) == "" && len(keywords) == 0 {
		return "", ErrEmptyHeadline
	}
	terms := Terms(headline, keywords...)
	return l.base + "?" + url.QueryEscape(strings.Join(terms, ",")), nil
}

// Terms returns up to three search terms for the headline.
func Terms(headline string, keywords ...string) []string {
	text := strings.ToLower(strings.Join(append([]string{headline}, keywords...), " "))

	var primary, secondary string
	for _, a := range associations {
		if !strings.Contains(text, a.keyword) {
			continue
		}
		c := a.concept
		switch {
		case slices.Contains(eventConcepts, c):
			if priorities[c] > priorities[primary] {
				primary = c
			}
		case slices.Contains(sectors, c):
			if primary == "" || priorityOf(primary) < priorities["sector"] {
				primary = c
			}
		case slices.Contains(sentiments, c):
			if secondary == "" || priorityOf(secondary) < priorities["sentiment"] {
				secondary = c
			}
		default:
			if priorities[c] > priorityOf(primary) {
				primary = c
			}
		}
	}

	switch {
	case primary == "" && secondary != "":
		primary, secondary = secondary, ""
	case primary != "" && secondary != "" && !slices.Contains(sentiments, primary):
		if priorityOf(secondary) > priorityOf(primary) {
			primary = secondary
		}
	}

	var terms []string
	add := func(t string) {
		if t != "" && !slices.Contains(terms, t) {
			terms = append(terms, t)
		}
	}
	if primary != "" && primary != "default" {
		add(primary)
	}
	for _, kw := range keywords {
		if slices.Contains(sectors, kw) {
			add(kw)
			break
		}
	}
	if len(terms) == 0 && len(keywords) > 0 {
		add(keywords[0])
	}

	final := terms[:0:0]
	for _, t := range terms {
		if !slices.Contains(abstract, t) {
			final = append(final, t)
		}
	}
	if len(final) == 0 {
		final = []string{"business", "finance"}
	}
	if len(final) > 3 {
		final = final[:3]
	}
	return final
}

// priorityOf treats the five sector names as the "sector" concept.
func priorityOf(concept string) int {
	if slices.Contains(sectors, concept) {
		return priorities["sector"]
	}
	return priorities[concept]
}
