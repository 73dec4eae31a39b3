// Package newsgen is a character-level Markov text generator trained on a
// small embedded financial-news corpus. It writes the narrative for events
// and adapts its transition weights to how the market moved after an
// article was published.
//
// Models are immutable values: Learn and Refine return a new model that
// shares unchanged rows with the old one.
package newsgen

import (
	_ "embed"
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/atmx/market-sim/internal/model"
)

//go:embed corpus.txt
var corpus string

// Order is the number of characters of context per transition.
const Order = 6

const (
	minLength       = 500
	lengthJitter    = 300
	maxAdjustment   = 0.05
	outcomeScale    = 5
	minWeight       = 0.1
	refineFactor    = 1.001
	refineChunkSize = 500
)

// ErrEmptyModel is returned when generating from a model with no transitions.
var ErrEmptyModel = errors.New("newsgen: empty text model")

// Generator builds and updates text models. It is not safe for concurrent
// use because it owns its random source.
type Generator struct {
	rng    *rand.Rand
	corpus string
	grams  []string
}

// New returns a generator over the embedded corpus.
func New(rng *rand.Rand) *Generator {
	return NewWithCorpus(rng, corpus)
}

// NewWithCorpus returns a generator trained on text.
func NewWithCorpus(rng *rand.Rand, text string) *Generator {
	g := &Generator{rng: rng, corpus: text}
	seen := make(map[string]struct{})
	for i := 0; i+Order < len(text); i++ {
		seen[text[i:i+Order]] = struct{}{}
	}
	g.grams = make([]string, 0, len(seen))
	for gram := range seen {
		g.grams = append(g.grams, gram)
	}
	sort.Strings(g.grams)
	return g
}

// NewModel counts every transition in the corpus.
func (g *Generator) NewModel() *model.TextModel {
	t := make(map[string]map[string]float64, len(g.grams))
	for i := 0; i+Order < len(g.corpus); i++ {
		gram := g.corpus[i : i+Order]
		next := g.corpus[i+Order : i+Order+1]
		row := t[gram]
		if row == nil {
			row = make(map[string]float64)
			t[gram] = row
		}
		row[next]++
	}
	return &model.TextModel{Order: Order, Transitions: t}
}

func seedPhrase(req model.ArticleRequest) string {
	var b strings.Builder
	if req.Symbol != "" {
		b.WriteString(req.StockName + " (" + req.Symbol + ") ")
	} else {
		b.WriteString("The global market ")
	}
	switch req.Type {
	case model.EventPositive:
		b.WriteString("stock surged")
	case model.EventNegative:
		b.WriteString("is facing headwinds")
	case model.EventSplit:
		b.WriteString("announced a stock split")
	case model.EventMerger:
		b.WriteString("is acquiring a rival")
	case model.EventAlliance:
		b.WriteString("formed a strategic alliance")
	}
	s := b.String()
	if len(s) < Order+1 {
		s += strings.Repeat(" ", Order+1-len(s))
	}
	return s
}

// Generate writes an article for req. The headline is the event name; the
// body is sampled from m starting at a seed phrase.
func (g *Generator) Generate(m *model.TextModel, req model.ArticleRequest) (model.Article, error) {
	if m == nil || len(m.Transitions) == 0 || m.Order <= 0 {
		return model.Article{}, ErrEmptyModel
	}
	keys := g.grams
	if len(keys) == 0 {
		keys = sortedKeys(m.Transitions)
	}

	text := []byte(seedPhrase(req))
	gram := string(text[len(text)-m.Order:])
	target := minLength + g.rng.IntN(lengthJitter)
	for i := 0; i < target; i++ {
		row := m.Transitions[gram]
		if len(row) == 0 {
			gram = keys[g.rng.IntN(len(keys))]
			continue
		}
		text = append(text, g.pick(row)...)
		gram = string(text[len(text)-m.Order:])
	}

	cleaned := strings.TrimSpace(string(text))
	if end := strings.LastIndex(cleaned, "."); end != -1 {
		cleaned = cleaned[:end+1]
	}
	return model.Article{
		Headline:  req.Name,
		Summary:   summarize(cleaned),
		FullText:  paragraphs(cleaned),
		Generated: cleaned,
	}, nil
}

// pick samples a next character proportionally to its weight. Keys are
// visited in sorted order so a seeded generator is reproducible.
func (g *Generator) pick(row map[string]float64) string {
	keys := make([]string, 0, len(row))
	var total float64
	for k, w := range row {
		keys = append(keys, k)
		total += w
	}
	sort.Strings(keys)
	r := g.rng.Float64() * total
	for _, k := range keys {
		r -= row[k]
		if r <= 0 {
			return k
		}
	}
	return keys[0]
}

func sentences(text string) []string {
	parts := strings.Split(text, ". ")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func summarize(text string) string {
	s := sentences(text)
	if len(s) > 2 {
		s = s[:2]
	}
	out := strings.Join(s, ". ")
	if !strings.HasSuffix(out, ".") {
		out += "."
	}
	return out
}

// paragraphs groups sentences three to a paragraph.
func paragraphs(text string) string {
	var full, para strings.Builder
	for i, s := range sentences(text) {
		para.WriteString(strings.TrimSuffix(s, "."))
		para.WriteString(". ")
		if (i+1)%3 == 0 {
			full.WriteString(strings.TrimSpace(para.String()))
			full.WriteString("\n\n")
			para.Reset()
		}
	}
	if para.Len() > 0 {
		full.WriteString(strings.TrimSpace(para.String()))
	}
	return strings.TrimSpace(full.String())
}

// Learn scales every transition used by generated by a factor in
// [0.95, 1.05] derived from outcome, where 1.0 is neutral. Weights never
// drop below 0.1 and transitions absent from m are ignored.
func (g *Generator) Learn(m *model.TextModel, generated string, outcome float64) *model.TextModel {
	boost := 1 + math.Tanh((outcome-1)*outcomeScale)*maxAdjustment
	return scale(m, generated, func(w float64) float64 {
		return math.Max(minWeight, w*boost)
	})
}

// Refine reinforces existing transitions found in a random corpus chunk.
func (g *Generator) Refine(m *model.TextModel) *model.TextModel {
	if len(g.corpus) <= refineChunkSize {
		return scale(m, g.corpus, func(w float64) float64 { return w * refineFactor })
	}
	start := g.rng.IntN(len(g.corpus) - refineChunkSize)
	chunk := g.corpus[start : start+refineChunkSize]
	return scale(m, chunk, func(w float64) float64 { return w * refineFactor })
}

// scale returns a copy of m with f applied to each transition of text that
// exists in m. Only touched rows are copied.
func scale(m *model.TextModel, text string, f func(float64) float64) *model.TextModel {
	if m == nil || m.Order <= 0 {
		return m
	}
	out := &model.TextModel{Order: m.Order, Transitions: make(map[string]map[string]float64, len(m.Transitions))}
	for k, row := range m.Transitions {
		out.Transitions[k] = row
	}
	copied := make(map[string]bool)
	for i := 0; i+m.Order < len(text); i++ {
		gram := text[i : i+m.Order]
		next := text[i+m.Order : i+m.Order+1]
		row, ok := out.Transitions[gram]
		if !ok {
			continue
		}
		w, ok := row[next]
		if !ok || w == 0 {
			continue
		}
		if !copied[gram] {
			cp := make(map[string]float64, len(row))
			for k, v := range row {
				cp[k] = v
			}
			out.Transitions[gram] = cp
			row = cp
			copied[gram] = true
		}
		row[next] = f(w)
	}
	return out
}

func sortedKeys(m map[string]map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
