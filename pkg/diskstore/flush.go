package diskstore

import (
	"errors"
	"fmt"

	"github.com/yesquel/gaiakv/pkg/gaiaerr"
	"github.com/yesquel/gaiakv/pkg/looim"
	"github.com/yesquel/gaiakv/pkg/ts"
)

// FlushTable snapshot-reads every COid tracked by tb at snapshotTs and
// durably writes each as its latest checkpoint (spec §4.4.8 flush_to_disk).
// COids with no version at or before snapshotTs are skipped rather than
// treated as an error, matching pkg/looim's own FlushToFile behavior.
func FlushTable(s *Store, tb *looim.Table, snapshotTs ts.Ts) error {
	for c, o := range tb.All() {
		tucoid, at, err := o.Read(snapshotTs, nil)
		if err != nil {
			if errors.Is(err, gaiaerr.ErrTooOldVersion) {
				continue
			}
			return fmt.Errorf("diskstore: flush %s: %w", c, err)
		}
		if !tucoid.IsWrite() {
			// ReadLocked always materializes a checkpoint-equivalent
			// TxUpdateCoid (HasWrite or HasWriteSV) for any successful
			// read; a bare delta here would indicate a pkg/looim defect.
			return fmt.Errorf("diskstore: flush %s: read returned a non-checkpoint tucoid", c)
		}
		if err := s.PutCheckpoint(c, at, tucoid); err != nil {
			return err
		}
	}
	return nil
}
