// Package backend is the contract between a sandbox owner and the engine
// hosting its windows.
//
// A Backend opens windows. Each window hosts one page, the program resolved
// by sand name from the Pages registry, and reports to its owner through a
// signals mailbox:
//
//	Loaded{Window, Generation}          page ready for init
//	Message{Window, Generation, Event}  event emitted by the page
//
// Reload replaces the hosted page. Every page instance has a generation and
// signals from a superseded generation are stale: the windowed engine drops
// what an old page emits after the reload, and owners compare Generation()
// for anything already queued.
//
// Engines:
//
//	TypeGoja  every page runs in its own goroutine with a goja runtime leased
//	          from the sandbox pool and may spawn nested backends
//	TypeStub  minimal conforming windows without scripts or nesting
package backend
