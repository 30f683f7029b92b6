package race

import (
	"unsafe"

	"github.com/kolkov/romp/internal/race/task"
	"github.com/kolkov/romp/internal/race/report"
)

// DataSharing classifies how accessed memory relates to the task making
// the access; it is an alias of the internal task package's enum so
// callers never need to import internal packages directly.
type DataSharing = task.DataSharing

const (
	// Shared is the default: memory visible to more than one task, fully
	// checked for races.
	Shared = task.Shared
	// ThreadPrivate is stack memory below the task's exit frame or memory
	// declared threadprivate; never checked.
	ThreadPrivate = task.ThreadPrivateBelowExit
	// StaticThreadPrivate is memory thread-private for the thread's whole
	// lifetime; never checked.
	StaticThreadPrivate = task.StaticThreadPrivate
)

// Formatted is one symbolized race report, ready for display.
type Formatted = report.Formatted

// AddressOf returns the byte address of v, for use as Access.Address.
func AddressOf[T any](v *T) uintptr {
	return uintptr(unsafe.Pointer(v))
}
