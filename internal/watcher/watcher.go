// Package watcher polls registered log folders and reports when their set of
// logs changes.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dronetrace/dronetrace/internal/catalog"
	"github.com/dronetrace/dronetrace/internal/logging"
)

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

type Event struct {
	Path string
	Type EventType
}

// SourceLister is the part of the catalog the poller reads.
type SourceLister interface {
	GetSources(ctx context.Context) ([]*catalog.Source, error)
}

type fileState struct {
	size  int64
	mtime time.Time
}

type snapshot map[string]fileState

// Poller compares successive listings of each source folder. The first scan of
// a folder only records a baseline.
type Poller struct {
	opts     catalog.DiscoverOptions
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	seen  map[string]snapshot
	onChg func(source *catalog.Source, events []Event)
}

func NewPoller(opts catalog.DiscoverOptions, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Poller{
		opts:     opts,
		interval: interval,
		logger:   logging.WithComponent(logger, "watcher"),
		seen:     make(map[string]snapshot),
	}
}

// OnChange registers the callback invoked with every non-empty change set.
func (p *Poller) OnChange(callback func(source *catalog.Source, events []Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChg = callback
}

// Watch polls until ctx is cancelled. A non-positive interval returns at once.
func (p *Poller) Watch(ctx context.Context, sources SourceLister) {
	if p.interval <= 0 {
		p.logger.Info("folder watching disabled")
		return
	}
	p.logger.Info("watching source folders", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx, sources)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx, sources)
		}
	}
}

// Poll scans every present source once and dispatches the changes.
func (p *Poller) Poll(ctx context.Context, sources SourceLister) {
	list, err := sources.GetSources(ctx)
	if err != nil {
		p.logger.Warn("failed to list sources", "error", err)
		return
	}

	live := make(map[string]bool, len(list))
	for _, src := range list {
		live[src.Path] = true
		if !src.Present {
			continue
		}
		events, err := p.Scan(src.Path)
		if err != nil {
			logging.WithSourceID(p.logger, src.ID).Debug("scan failed", "error", err)
			continue
		}
		if len(events) == 0 {
			continue
		}

		p.mu.Lock()
		cb := p.onChg
		p.mu.Unlock()
		logging.WithSourceID(p.logger, src.ID).Info("source folder changed", "events", len(events))
		if cb != nil {
			cb(src, events)
		}
	}

	p.mu.Lock()
	for dir := range p.seen {
		if !live[dir] {
			delete(p.seen, dir)
		}
	}
	p.mu.Unlock()
}

// Scan lists dir and returns the differences from its previous listing.
func (p *Poller) Scan(dir string) ([]Event, error) {
	paths, err := catalog.DiscoverLogs(dir, p.opts)
	if err != nil {
		return nil, err
	}

	cur := make(snapshot, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		cur[path] = fileState{size: info.Size(), mtime: info.ModTime()}
	}

	p.mu.Lock()
	prev, known := p.seen[dir]
	p.seen[dir] = cur
	p.mu.Unlock()

	if !known {
		return nil, nil
	}

	var events []Event
	for _, path := range paths {
		st, ok := cur[path]
		if !ok {
			continue
		}
		old, existed := prev[path]
		switch {
		case !existed:
			events = append(events, Event{Path: path, Type: EventCreate})
		case old.size != st.size || !old.mtime.Equal(st.mtime):
			events = append(events, Event{Path: path, Type: EventModify})
		}
	}
	for path := range prev {
		if _, ok := cur[path]; !ok {
			events = append(events, Event{Path: path, Type: EventDelete})
		}
	}
	return events, nil
}
