package skiplist

import "testing"

func TestInsertKeepsAscendingOrder(t *testing.T) {
	l := New[int](func(a, b int) bool { return a < b })
	for _, v := range []int{5, 1, 4, 2, 3} {
		l.Insert(v)
	}
	got := l.Values()
	want := []int{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestRemoveFrontDrainsInOrder(t *testing.T) {
	l := New[int](func(a, b int) bool { return a < b })
	for _, v := range []int{3, 1, 2} {
		l.Insert(v)
	}
	var drained []int
	for l.Len() > 0 {
		v, ok := l.RemoveFront()
		if !ok {
			t.Fatalf("expected a value while Len() > 0")
		}
		drained = append(drained, v)
	}
	want := []int{1, 2, 3}
	for i := range want {
		if drained[i] != want[i] {
			t.Fatalf("got %v want %v", drained, want)
		}
	}
}

func TestRemoveMatchRemovesOnlyFirstMatch(t *testing.T) {
	l := New[int](func(a, b int) bool { return a < b })
	for _, v := range []int{1, 2, 2, 3} {
		l.Insert(v)
	}
	ok := l.RemoveMatch(func(v int) bool { return v == 2 })
	if !ok {
		t.Fatalf("expected a match")
	}
	if l.Len() != 3 {
		t.Fatalf("expected exactly one removal, got len=%d", l.Len())
	}
	got := l.Values()
	want := []int{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestFrontOnEmptyListReportsFalse(t *testing.T) {
	l := New[int](func(a, b int) bool { return a < b })
	if _, ok := l.Front(); ok {
		t.Fatalf("expected no front element on an empty list")
	}
}
