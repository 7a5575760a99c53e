package tree

import "testing"

func TestInsertCollision(t *testing.T) {
	var tr Tree[int, string]
	if !tr.Insert(10, "a") {
		t.Fatal("first insert of a fresh key must succeed")
	}
	if tr.Insert(10, "b") {
		t.Fatal("inserting a duplicate key must report collision")
	}
	v, ok := tr.Ceiling(10)
	if !ok || v != "a" {
		t.Fatalf("collision must leave original value untouched, got %q", v)
	}
	if tr.Len() != 1 {
		t.Fatalf("size must stay 1 after a rejected collision, got %d", tr.Len())
	}
}

func TestCeiling(t *testing.T) {
	var tr Tree[int, int]
	for _, k := range []int{10, 30, 50, 70} {
		tr.Insert(k, k)
	}
	tests := []struct {
		query   int
		wantKey int
		wantOK  bool
	}{
		{0, 10, true},
		{10, 10, true},
		{11, 30, true},
		{70, 70, true},
		{71, 0, false},
	}
	for _, tt := range tests {
		v, ok := tr.Ceiling(tt.query)
		if ok != tt.wantOK {
			t.Errorf("Ceiling(%d) ok = %v, want %v", tt.query, ok, tt.wantOK)
		}
		if ok && v != tt.wantKey {
			t.Errorf("Ceiling(%d) = %d, want %d", tt.query, v, tt.wantKey)
		}
	}
}

func TestInOrderIsSorted(t *testing.T) {
	var tr Tree[int, int]
	keys := []int{50, 10, 70, 30, 90, 20, 60}
	for _, k := range keys {
		tr.Insert(k, k)
	}
	var got []int
	tr.InOrder(func(k, v int) { got = append(got, k) })
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("in-order traversal not strictly increasing: %v", got)
		}
	}
	if len(got) != len(keys) {
		t.Fatalf("got %d keys, want %d", len(got), len(keys))
	}
}

func TestRemove(t *testing.T) {
	var tr Tree[int, int]
	for _, k := range []int{10, 20, 30, 40, 50} {
		tr.Insert(k, k)
	}
	if !tr.Remove(30) {
		t.Fatal("remove of present key must succeed")
	}
	if tr.Remove(30) {
		t.Fatal("remove of already-removed key must fail")
	}
	if v, ok := tr.Ceiling(25); !ok || v != 40 {
		t.Fatal("ceiling must still find 40 after 30 is removed")
	}
	if tr.Len() != 4 {
		t.Fatalf("size must be 4 after one removal, got %d", tr.Len())
	}
}
