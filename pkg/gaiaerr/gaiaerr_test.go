package gaiaerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{ErrTooOldVersion, StatusTooOldVersion},
		{ErrCorruptedLog, StatusTooOldVersion},
		{ErrPendingData, StatusPendingData},
		{ErrWrongType, StatusWrongType},
		{ErrAttrOutrange, StatusAttrOutrange},
		{ErrNoMemory, StatusNoMemory},
		{ErrVoteNo, StatusVoteNo},
		{errors.New("some other failure"), StatusInternal},
		{fmt.Errorf("wrapped: %w", ErrWrongType), StatusWrongType},
	}
	for _, c := range cases {
		if got := ToStatus(c.err); got != c.want {
			t.Errorf("ToStatus(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestStatusString(t *testing.T) {
	if got := StatusPendingData.String(); got != "PENDING_DATA" {
		t.Errorf("StatusPendingData.String() = %q, want PENDING_DATA", got)
	}
}
