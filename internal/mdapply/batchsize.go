package mdapply

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// defaultUpdateBatchSize mirrors MDApply.UPDATE_BATCH_SIZE in the original:
// a cap chosen so a batch's worst case (every task holding open a source
// and a destination descriptor) stays well inside RLIMIT_NOFILE.
const defaultUpdateBatchSize = 1000

// computeBatchSize derives the actual per-run batch size from the
// process's file descriptor limit (spec.md §4.F step 1) and raises the
// soft limit to 4x that size so a single batch can never be starved of
// descriptors mid-rename.
func computeBatchSize() (int, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, fmt.Errorf("mdapply: getrlimit: %w", err)
	}

	size := defaultUpdateBatchSize
	if want := int(rlim.Max / 4); want < size {
		size = want
	}
	if size < 1 {
		size = 1
	}

	need := uint64(4 * size)
	if need > rlim.Cur {
		newRlim := unix.Rlimit{Cur: need, Max: rlim.Max}
		if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &newRlim); err != nil {
			return 0, fmt.Errorf("mdapply: setrlimit: %w", err)
		}
	}
	return size, nil
}
