package xmediator

import (
	"context"
	"fmt"
	"sync"

	"github.com/trickstertwo/xlog"
)

// EnrichmentPipeline applies ordered, fail-soft transforms to an event before
// it reaches subscribers. Order: ambient context, global enrichers, exact-type
// enrichers, namespace-wildcard enrichers.
type EnrichmentPipeline struct {
	logger *xlog.Logger

	mu      sync.RWMutex
	nextID  int
	global  []enricherEntry
	byType  map[string][]enricherEntry
	ambient bool
}

type enricherEntry struct {
	id       int
	enricher Enricher
}

// NewEnrichmentPipeline returns a pipeline with ambient-context enrichment
// enabled.
func NewEnrichmentPipeline(logger *xlog.Logger) *EnrichmentPipeline {
	if logger == nil {
		logger = xlog.Default()
	}
	return &EnrichmentPipeline{
		logger:  logger,
		byType:  make(map[string][]enricherEntry),
		ambient: true,
	}
}

// DisableAmbientContext turns off the context-provider step.
func (p *EnrichmentPipeline) DisableAmbientContext() {
	p.mu.Lock()
	p.ambient = false
	p.mu.Unlock()
}

// RegisterGlobal adds an enricher applied to every event. The returned
// function unregisters it.
func (p *EnrichmentPipeline) RegisterGlobal(e Enricher) func() {
	if e == nil {
		return func() {}
	}
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.global = append(p.global, enricherEntry{id: id, enricher: e})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.global = removeEntry(p.global, id)
	}
}

// RegisterForType adds an enricher for an exact event type or a namespace
// wildcard such as "user.*". The returned function unregisters it.
func (p *EnrichmentPipeline) RegisterForType(pattern string, e Enricher) func() {
	if e == nil || pattern == "" {
		return func() {}
	}
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.byType[pattern] = append(p.byType[pattern], enricherEntry{id: id, enricher: e})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.byType[pattern] = removeEntry(p.byType[pattern], id)
		if len(p.byType[pattern]) == 0 {
			delete(p.byType, pattern)
		}
	}
}

// Enrich runs the pipeline. A failing step is logged and its output
// discarded; enrichment never aborts publication.
func (p *EnrichmentPipeline) Enrich(ctx context.Context, e *Event) *Event {
	p.mu.RLock()
	ambient := p.ambient
	global := append([]enricherEntry(nil), p.global...)
	exact := append([]enricherEntry(nil), p.byType[e.Type]...)
	ns := append([]enricherEntry(nil), p.byType[e.Namespace()+".*"]...)
	p.mu.RUnlock()

	out := e
	if ambient && out.Context == nil {
		if ec := eventContextFromContext(ctx); ec != nil {
			out = out.With(WithEventContext(*ec))
		}
	}
	out = p.applyAll(ctx, out, global)
	out = p.applyAll(ctx, out, exact)
	out = p.applyAll(ctx, out, ns)
	return out
}

func (p *EnrichmentPipeline) applyAll(ctx context.Context, e *Event, entries []enricherEntry) *Event {
	out := e
	for _, entry := range entries {
		next, err := safeEnrich(ctx, entry.enricher, out)
		if err != nil || next == nil {
			p.logger.Warn().
				Str("event_id", out.ID).
				Str("event_type", out.Type).
				Err(err).
				Msg("xmediator: enricher failed, step skipped")
			continue
		}
		out = next
	}
	return out
}

func safeEnrich(ctx context.Context, en Enricher, e *Event) (out *Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("enricher panic: %v", r)
		}
	}()
	return en.Enrich(ctx, e)
}

func removeEntry(entries []enricherEntry, id int) []enricherEntry {
	for i, entry := range entries {
		if entry.id == id {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}
