package bulk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBusy is returned when a bulk operation is requested while another one
// is still running.
var ErrBusy = errors.New("bulk operation already running")

// CycleError rejects a move that would place a folder inside itself or one of
// its descendants.
type CycleError struct {
	FolderID string
	TargetID string
}

func (e *CycleError) Error() string {
	if e.FolderID == e.TargetID {
		return fmt.Sprintf("cannot move folder %s into itself", e.FolderID)
	}
	return fmt.Sprintf("cannot move folder %s into its descendant %s", e.FolderID, e.TargetID)
}

// NotEmptyError rejects a non-recursive delete of folders that still hold
// subfolders or assets.
type NotEmptyError struct {
	FolderIDs []string
}

func (e *NotEmptyError) Error() string {
	return fmt.Sprintf("folders not empty, recursive delete required: %s", strings.Join(e.FolderIDs, ", "))
}

// PartialBatchError reports a batch where some items failed. Items that
// succeeded stay committed; Result lists both sides.
type PartialBatchError struct {
	Op     string
	Result Result
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("%s: %d of %d items failed", e.Op, e.Result.Failed, e.Result.Total())
}
