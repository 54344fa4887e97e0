// Package orchestrator is the host side of the sandbox tree.
//
// The Orchestrator owns the root windows opened through a backend. It takes
// controller commands (createWorker, fillWorker, reloadWorker, exec, flush,
// destroy), routes them by the head of their path to a root, and turns the
// events bubbling out of the tree into controller events:
//
//	created -> workerState{state: empty}
//	filled  -> workerState{state: ready, fillerId}
//	done    -> done
//	error   -> error
//
// Commands and backend signals are handled one at a time on the Run loop;
// enqueue methods never block. Events reach the controller through a Sink.
package orchestrator
