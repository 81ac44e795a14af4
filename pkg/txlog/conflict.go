package txlog

// DelRangeDelRangeConflicts controls whether two DelRange items against
// overlapping-but-not-provably-intersecting ranges are treated as a
// conflict. The original storage server always conflicts them (it has no
// cheap way to test two arbitrary intervals for emptiness of intersection
// without re-walking both keyinfos); this is kept as a package variable
// rather than a hardcoded constant so a future interval-intersection test
// can relax it (spec §4.5.1 note).
var DelRangeDelRangeConflicts = true

// HasConflicts reports whether two prepared transactions' compressed
// updates to the same COid conflict (spec §4.5.1):
//
//  1. either side holds a Write/WriteSV checkpoint: unconditional conflict.
//  2. their SetAttrs bitmaps intersect: conflict.
//  3. an Add in one side targets a key also Add'd by the other: conflict.
//  4. an Add in one side targets a key inside a DelRange of the other:
//     conflict.
//  5. both sides hold a DelRange: conflict, unless
//     DelRangeDelRangeConflicts is false.
func HasConflicts(a, b *TxUpdateCoid) bool {
	if a.IsWrite() || b.IsWrite() {
		return true
	}
	if a.SetAttrs.IntersectionCardinality(b.SetAttrs) > 0 {
		return true
	}

	aAdds, aDels := splitLitems(a)
	bAdds, bDels := splitLitems(b)

	if addKeysIntersect(a, b) {
		return true
	}

	for _, add := range aAdds {
		for _, del := range bDels {
			if del.Interval.InRange(a.CellType, a.KeyInfo, del.Start, del.End, add.Cell.Key) {
				return true
			}
		}
	}
	for _, add := range bAdds {
		for _, del := range aDels {
			if del.Interval.InRange(b.CellType, b.KeyInfo, del.Start, del.End, add.Cell.Key) {
				return true
			}
		}
	}

	if DelRangeDelRangeConflicts && len(aDels) > 0 && len(bDels) > 0 {
		return true
	}
	return false
}

func splitLitems(t *TxUpdateCoid) (adds, dels []TxListItem) {
	for _, it := range t.Litems {
		switch it.Kind {
		case ItemAdd:
			adds = append(adds, it)
		case ItemDelRange:
			dels = append(dels, it)
		}
	}
	return
}

func addKeysIntersect(a, b *TxUpdateCoid) bool {
	as, bs := a.addKeysSet(), b.addKeysSet()
	small, big := as, bs
	if big.Cardinality() < small.Cardinality() {
		small, big = big, small
	}
	found := false
	small.Each(func(k string) bool {
		if big.Contains(k) {
			found = true
			return true
		}
		return false
	})
	return found
}
