package looim

import (
	"fmt"

	"github.com/yesquel/gaiakv/pkg/sval"
	"github.com/yesquel/gaiakv/pkg/txlog"
)

// applyTucoidToSuperValue applies delta's AttrSet/Add/DelRange items onto sv
// in place (spec §4.4.7). delta must not itself carry a Write/WriteSV
// checkpoint — callers only ever apply post-checkpoint deltas. Returns the
// number of Add and DelRange items applied, used by the caller to decide
// whether the forward walk crossed the snapshot thresholds.
func applyTucoidToSuperValue(sv *sval.SuperValue, delta *txlog.TxUpdateCoid) (nadd, ndelrange int, err error) {
	if delta.IsWrite() {
		return 0, 0, fmt.Errorf("looim: applyTucoidToSuperValue: delta carries a checkpoint")
	}

	if delta.SetAttrs != nil {
		for i, e := delta.SetAttrs.NextSet(0); e; i, e = delta.SetAttrs.NextSet(i + 1) {
			if int(i) >= sv.NAttrs() {
				return 0, 0, fmt.Errorf("looim: applyTucoidToSuperValue: attr %d out of range", i)
			}
			sv.Attrs[i] = delta.Attrs[i]
		}
	}

	for _, it := range delta.Litems {
		switch it.Kind {
		case txlog.ItemAdd:
			sv.InsertOrReplace(it.Cell)
			nadd++
		case txlog.ItemDelRange:
			sv.DeleteRange(it.Start, it.End, it.Interval)
			ndelrange++
		}
	}
	return nadd, ndelrange, nil
}
