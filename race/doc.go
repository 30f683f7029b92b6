// Package race is the public API of a pure-Go dynamic data-race detector
// for fork-join task-parallel programs.
//
// Unlike Go's built-in -race detector, which instruments goroutines and
// channels, this detector is built for runtimes with an explicit task
// model: tasks are created, forked, and joined by name, each carries its
// own lockset, and accesses are reported to the detector by address
// rather than inferred from goroutine scheduling. A caller embeds the
// detector by creating a Task for each unit of work and calling
// Check at each memory reference that needs checking; the detector
// takes care of shadow-memory mapping, happens-before analysis, and
// reporting exactly once per racing byte.
//
// # Usage
//
//	d := race.New()
//	d.Init()
//	defer d.Fini()
//
//	t := d.NewTask()
//	d.Check(t, race.Access{
//		Address:   uintptr(unsafe.Pointer(&x)),
//		IsWrite:   true,
//		InstnAddr: race.CallerPC(),
//	})
package race
