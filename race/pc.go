package race

import "runtime"

// CallerPC returns the program counter of its caller's caller, intended to
// be passed as Access.InstnAddr at the call site that wraps a real memory
// reference so that a later race report symbolizes back to application
// code rather than to this helper.
func CallerPC() uintptr {
	var pcs [1]uintptr
	n := runtime.Callers(3, pcs[:])
	if n == 0 {
		return 0
	}
	return pcs[0]
}
