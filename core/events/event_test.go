package events

import "testing"

type named string

func (n named) EventType() string { return string(n) }

type counter struct{ n int }

func (c *counter) Emit(Event) { c.n++ }

func TestRingKeepsMostRecent(t *testing.T) {
	r := NewRing(3)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		r.Emit(named(name))
	}
	got, total := r.Snapshot()
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	want := []string{"c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, evt := range got {
		if evt.EventType() != want[i] {
			t.Fatalf("event %d = %s, want %s", i, evt.EventType(), want[i])
		}
	}
}

func TestRingPartial(t *testing.T) {
	r := NewRing(4)
	r.Emit(named("a"))
	got, total := r.Snapshot()
	if total != 1 || len(got) != 1 || got[0].EventType() != "a" {
		t.Fatalf("unexpected snapshot %v (total %d)", got, total)
	}
}

func TestMultiSkipsNil(t *testing.T) {
	a, b := &counter{}, &counter{}
	m := Multi(a, nil, b, NoopEmitter{})
	m.Emit(named("x"))
	m.Emit(named("y"))
	if a.n != 2 || b.n != 2 {
		t.Fatalf("unexpected counts %d %d", a.n, b.n)
	}
}
