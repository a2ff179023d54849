package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dronetrace/dronetrace/internal/catalog"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func newTestPoller() *Poller {
	return NewPoller(catalog.DefaultDiscoverOptions(), time.Millisecond, nil)
}

func TestScan_BaselineThenChanges(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "A.SRT", "one")
	b := write(t, dir, "B.SRT", "two")
	write(t, dir, "notes.txt", "ignored")

	p := newTestPoller()

	events, err := p.Scan(dir)
	require.NoError(t, err)
	assert.Empty(t, events, "first scan records a baseline")

	events, err = p.Scan(dir)
	require.NoError(t, err)
	assert.Empty(t, events)

	c := write(t, dir, "C.SRT", "three")
	write(t, dir, "A.SRT", "one, longer")
	require.NoError(t, os.Remove(b))
	write(t, dir, "more.txt", "ignored")

	events, err = p.Scan(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Event{
		{Path: a, Type: EventModify},
		{Path: c, Type: EventCreate},
		{Path: b, Type: EventDelete},
	}, events)
}

func TestScan_MissingDir(t *testing.T) {
	_, err := newTestPoller().Scan(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

type sources []*catalog.Source

func (s sources) GetSources(context.Context) ([]*catalog.Source, error) {
	return s, nil
}

func TestPoll_DispatchesPerSource(t *testing.T) {
	present := t.TempDir()
	absent := t.TempDir()
	write(t, present, "A.SRT", "x")
	write(t, absent, "A.SRT", "x")

	list := sources{
		{ID: "s1", Path: present, Present: true},
		{ID: "s2", Path: absent, Present: false},
	}

	p := newTestPoller()
	var got []string
	p.OnChange(func(src *catalog.Source, events []Event) {
		got = append(got, src.ID)
	})

	ctx := context.Background()
	p.Poll(ctx, list)
	assert.Empty(t, got)

	write(t, present, "B.SRT", "y")
	write(t, absent, "B.SRT", "y")
	p.Poll(ctx, list)
	assert.Equal(t, []string{"s1"}, got, "sources marked missing are not scanned")
}

func TestPoll_ForgetsRemovedSources(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "A.SRT", "x")

	p := newTestPoller()
	ctx := context.Background()
	p.Poll(ctx, sources{{ID: "s1", Path: dir, Present: true}})
	p.Poll(ctx, sources{})

	p.mu.Lock()
	_, tracked := p.seen[dir]
	p.mu.Unlock()
	assert.False(t, tracked)
}

func TestWatch_DisabledReturns(t *testing.T) {
	p := NewPoller(catalog.DefaultDiscoverOptions(), 0, nil)
	done := make(chan struct{})
	go func() {
		p.Watch(context.Background(), sources{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch with zero interval should return")
	}
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "create", EventCreate.String())
	assert.Equal(t, "modify", EventModify.String())
	assert.Equal(t, "delete", EventDelete.String())
	assert.Equal(t, "unknown", EventType(9).String())
}
