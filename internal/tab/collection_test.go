package tab

import "testing"

func TestCollectionAddGetRemove(t *testing.T) {
	c := NewCollection()
	tb := New("default", false)

	c.Add(tb)
	if c.Count() != 1 {
		t.Fatalf("Count() = %d; want 1", c.Count())
	}

	got, ok := c.Get(tb.ID())
	if !ok || got != tb {
		t.Fatalf("Get(%q) = %v, %v; want original tab, true", tb.ID(), got, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Fatal("Get(missing) ok = true; want false")
	}

	c.Remove(tb.ID())
	if _, ok := c.Get(tb.ID()); ok {
		t.Fatal("Get() ok = true after Remove; want false")
	}
	if c.Count() != 0 {
		t.Fatalf("Count() = %d after Remove; want 0", c.Count())
	}
}

func TestCollectionList(t *testing.T) {
	c := NewCollection()
	a := New("default", false)
	b := New("default", false)
	c.Add(a)
	c.Add(b)

	ids := make(map[string]bool)
	for _, tb := range c.List() {
		ids[tb.ID()] = true
	}
	if len(ids) != 2 || !ids[a.ID()] || !ids[b.ID()] {
		t.Fatalf("List() ids = %v; want both tabs", ids)
	}
}
