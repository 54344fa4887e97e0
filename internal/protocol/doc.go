/*
Package protocol defines the messages exchanged across the sandbox tree and
the path routing rule shared by the orchestrator and every worker.

# Vocabulary

Controller → orchestrator (ControlCommand):

	createWorker, fillWorker, reloadWorker, exec, flush, destroy

Orchestrator → controller (ControlEvent):

	ready, workerState, done, error

Parent → child (Command):

	init, fill, exec, reload

Child → parent (Event):

	created, filled, done, error

# Routing

A path is the ordered list of node IDs from the root to the target node.
Going down, each hop calls Path.Next and forwards the suffix to the child
named by the head. Going up, each hop calls Path.Prepend with the ID of the
child the event arrived from. A node emits events about itself with an empty
path, so an event from depth D reaches the controller with exactly D
elements.

# Dispatch

Every kind has a method on ControlHandler, WorkerHandler or EventHandler.
Dispatch is a switch over the closed set of kinds; adding a kind means adding
an interface method, which every handler must then implement.
*/
package protocol
