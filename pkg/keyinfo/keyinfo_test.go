package keyinfo

import "testing"

func TestIntervalTypeRoundTrip(t *testing.T) {
	for left := Open; left <= Unbounded; left++ {
		for right := Open; right <= Unbounded; right++ {
			it := NewIntervalType(left, right)
			gotLeft, gotRight := it.Decode()
			if gotLeft != left || gotRight != right {
				t.Fatalf("round-trip mismatch: left=%v right=%v got=(%v,%v)", left, right, gotLeft, gotRight)
			}
		}
	}
}

func TestInRangeHalfOpen(t *testing.T) {
	// [2, 4) over int keys {1,2,3,4,5}: deletes 2 and 3.
	it := NewIntervalType(Closed, Open)
	start, end := IntKeyOf(2), IntKeyOf(4)
	for _, tc := range []struct {
		k    int64
		want bool
	}{
		{1, false}, {2, true}, {3, true}, {4, false}, {5, false},
	} {
		if got := it.InRange(IntKey, nil, start, end, IntKeyOf(tc.k)); got != tc.want {
			t.Errorf("k=%d: got %v want %v", tc.k, got, tc.want)
		}
	}
}

func TestInRangeUnbounded(t *testing.T) {
	it := NewIntervalType(Unbounded, Closed)
	end := IntKeyOf(3)
	if !it.InRange(IntKey, nil, Key{}, end, IntKeyOf(-1000)) {
		t.Fatalf("expected unbounded-left interval to include very small keys")
	}
	if it.InRange(IntKey, nil, Key{}, end, IntKeyOf(4)) {
		t.Fatalf("expected closed-right bound to exclude 4")
	}
}

func TestCmpBinaryNoCase(t *testing.T) {
	ki := &RcKeyInfo{Fields: []FieldInfo{{Collation: NoCase, Dir: Ascending}}}
	a := BytesKeyOf([]byte("Hello"))
	b := BytesKeyOf([]byte("hello"))
	if Cmp(BinaryKey, ki, a, b) != 0 {
		t.Fatalf("expected NOCASE collation to treat Hello == hello")
	}
}

func TestCmpBinaryDescending(t *testing.T) {
	ki := &RcKeyInfo{Fields: []FieldInfo{{Collation: BinaryUTF8, Dir: Descending}}}
	a := BytesKeyOf([]byte("a"))
	b := BytesKeyOf([]byte("b"))
	if Cmp(BinaryKey, ki, a, b) <= 0 {
		t.Fatalf("expected descending collation to sort 'a' after 'b'")
	}
}
