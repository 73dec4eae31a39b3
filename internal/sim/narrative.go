package sim

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/atmx/market-sim/internal/metrics"
	"github.com/atmx/market-sim/internal/model"
)

// rngReader feeds uuid generation from the engine's random source so that
// seeded runs reproduce event ids.
type rngReader struct{ r *rand.Rand }

func (r rngReader) Read(p []byte) (int, error) {
	var buf [8]byte
	for i := 0; i < len(p); i += 8 {
		binary.LittleEndian.PutUint64(buf[:], r.r.Uint64())
		copy(p[i:], buf[:])
	}
	return len(p), nil
}

func (e *Engine) newID() string {
	id, err := uuid.NewRandomFromReader(rngReader{e.rng})
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// emit stamps ev with an id and the current day, enriches it through the
// collaborators and pushes it to the front of the bounded event history.
func (e *Engine) emit(s *model.State, ev model.Event, keywords ...string) model.Event {
	ev.ID = e.newID()
	ev.Day = s.Day
	ev.Keywords = keywords
	e.narrate(s, &ev)

	s.EventHistory = append([]model.Event{ev}, s.EventHistory...)
	if limit := e.cfg.EventHistoryCap; limit > 0 && len(s.EventHistory) > limit {
		s.EventHistory = s.EventHistory[:limit]
	}
	if e.emitted != nil {
		*e.emitted = append(*e.emitted, ev)
	}
	metrics.EventsTotal.WithLabelValues(string(ev.Type)).Inc()
	return ev
}

// narrate fills headline, summary, body and image. A failed collaborator
// leaves placeholder text and marks the event pending for a later retry;
// it never fails the caller. An event with body text is not regenerated.
func (e *Engine) narrate(s *model.State, ev *model.Event) {
	ev.NarrativePending = false

	if ev.FullText == "" {
		article, err := e.text.Generate(s.TextModel, model.ArticleRequest{
			Type:        ev.Type,
			Symbol:      ev.Symbol,
			StockName:   ev.StockName,
			Name:        ev.Name,
			Description: ev.Description,
		})
		if err != nil {
			e.log.Warn("text generation failed", "event", ev.ID, "name", ev.Name, "error", err)
			metrics.NarrativeFailures.WithLabelValues("text").Inc()
			ev.Headline = ev.Name
			ev.Summary = ev.Description
			ev.NarrativePending = true
		} else {
			ev.Headline = article.Headline
			ev.Summary = article.Summary
			ev.FullText = article.FullText
			if ev.FullText == "" {
				ev.FullText = ev.Summary
			}
			e.trackArticle(s, ev, article.Generated)
		}
	}

	if ev.ImageURL == "" {
		url, err := e.images.Lookup(ev.Headline, ev.Keywords...)
		if err != nil {
			e.log.Warn("image lookup failed", "event", ev.ID, "error", err)
			metrics.NarrativeFailures.WithLabelValues("image").Inc()
			ev.NarrativePending = true
		} else {
			ev.ImageURL = url
		}
	}
}

func (e *Engine) trackArticle(s *model.State, ev *model.Event, generated string) {
	if generated == "" {
		return
	}
	a := model.TrackedArticle{
		EventID:       ev.ID,
		EvaluationDay: s.Day + e.cfg.ArticleHorizon,
		GeneratedText: generated,
		StartIndex:    s.MarketIndexLevel(),
	}
	if st := s.Stock(ev.Symbol); st != nil {
		a.Symbol = st.Symbol
		a.StartPrice = st.Price()
	}
	s.TrackedArticles = append(s.TrackedArticles, a)
}

// retryNarratives re-runs enrichment for events left pending.
func (e *Engine) retryNarratives(s *model.State) {
	for i := range s.EventHistory {
		ev := &s.EventHistory[i]
		if !ev.NarrativePending {
			continue
		}
		e.narrate(s, ev)
		if !ev.NarrativePending && s.ActiveEvent != nil && s.ActiveEvent.ID == ev.ID {
			active := ev.Clone()
			s.ActiveEvent = &active
		}
	}
}
