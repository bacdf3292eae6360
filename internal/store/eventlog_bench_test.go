package store

import (
	"context"
	"fmt"
	"testing"
)

func newBenchStore(b *testing.B) (*LibSQLStore, *EventLog) {
	b.Helper()
	dir := b.TempDir()
	s, err := NewLibSQLStore("file:" + dir + "/bench.db")
	if err != nil {
		b.Fatal(err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = s.Close() })
	return s, NewEventLog(s)
}

func BenchmarkEventLog_AppendEvents(b *testing.B) {
	s, el := newBenchStore(b)
	ctx := context.Background()
	sc := &Scene{Name: "bench"}
	if err := s.CreateScene(ctx, sc); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e := &Event{SceneID: sc.ID, NodeID: fmt.Sprintf("n%d", i%16), Type: "node_moved"}
		if err := el.AppendEvents(ctx, e); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLibSQLStore_SaveRevision(b *testing.B) {
	s, _ := newBenchStore(b)
	ctx := context.Background()
	sc := &Scene{Name: "bench"}
	if err := s.CreateScene(ctx, sc); err != nil {
		b.Fatal(err)
	}
	doc := sampleDocument(32)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.SaveRevision(ctx, sc.ID, doc); err != nil {
			b.Fatal(err)
		}
	}
}
