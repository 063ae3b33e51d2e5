package main

import (
	"context"
	"testing"
	"time"

	"github.com/tinytelemetry/graphsink/internal/model"
)

type fakeSource struct {
	name    string
	lines   chan model.IngestEnvelope
	stopped chan struct{}
}

func newFakeSource(name string, buffer int) *fakeSource {
	return &fakeSource{
		name:    name,
		lines:   make(chan model.IngestEnvelope, buffer),
		stopped: make(chan struct{}),
	}
}

func (s *fakeSource) Lines() <-chan model.IngestEnvelope { return s.lines }
func (s *fakeSource) Name() string                       { return s.name }

func (s *fakeSource) Stop() {
	select {
	case <-s.stopped:
		return
	default:
		close(s.stopped)
		close(s.lines)
	}
}

func TestSourceMultiplexer_ForwardsFromAllSources(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newFakeSource("a", 2)
	b := newFakeSource("b", 2)

	mux := NewSourceMultiplexer(ctx, []NamedLogSource{a, b}, 16)
	mux.Start()
	defer mux.Stop()

	a.lines <- model.IngestEnvelope{Source: "a", Line: "alpha"}
	b.lines <- model.IngestEnvelope{Source: "b", Message: model.NewMessageFromPairs("message", "beta")}
	a.Stop()
	b.Stop()

	got := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case env, ok := <-mux.Lines():
			if !ok {
				t.Fatalf("multiplexer closed before receiving expected lines: %+v", got)
			}
			if env.Message != nil {
				got[env.Message.GetString("message")] = true
				continue
			}
			got[env.Line] = true
		case <-timeout:
			t.Fatalf("timed out waiting for multiplexed lines: %+v", got)
		}
	}

	if !got["alpha"] || !got["beta"] {
		t.Fatalf("missing expected lines: %+v", got)
	}
}

func TestSourceMultiplexer_SkipsEmptyEnvelopes(t *testing.T) {
	t.Parallel()

	src := newFakeSource("a", 4)
	mux := NewSourceMultiplexer(context.Background(), []NamedLogSource{src}, 4)
	mux.Start()
	defer mux.Stop()

	src.lines <- model.IngestEnvelope{Source: "a"}
	src.lines <- model.IngestEnvelope{Source: "a", Line: "kept"}
	src.Stop()

	var got []string
	for env := range mux.Lines() {
		got = append(got, env.Line)
	}
	if len(got) != 1 || got[0] != "kept" {
		t.Fatalf("lines = %v, want [kept]", got)
	}
}

func TestSourceMultiplexer_StopInvokesSourceStop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newFakeSource("x", 1)
	mux := NewSourceMultiplexer(ctx, []NamedLogSource{src}, 8)
	mux.Start()

	mux.Stop()

	select {
	case <-src.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("expected source Stop() to be called")
	}
}

func TestSourceMultiplexer_NoSourcesClosesImmediately(t *testing.T) {
	t.Parallel()

	mux := NewSourceMultiplexer(context.Background(), nil, 0)
	mux.Start()

	if mux.HasSources() {
		t.Fatal("HasSources() = true, want false")
	}
	if _, ok := <-mux.Lines(); ok {
		t.Fatal("expected closed lines channel")
	}
	mux.Stop()
}

func TestSourceMultiplexer_SourceNames(t *testing.T) {
	t.Parallel()

	mux := NewSourceMultiplexer(context.Background(), []NamedLogSource{newFakeSource("tcp", 1), newFakeSource("http", 1)}, 1)
	names := mux.SourceNames()
	if len(names) != 2 || names[0] != "tcp" || names[1] != "http" {
		t.Fatalf("SourceNames() = %v", names)
	}
}
