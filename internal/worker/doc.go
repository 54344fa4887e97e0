/*
Package worker implements the sandbox node hosted by every window of the
tree, at every depth.

# Routing

Commands carry the path from the receiving node to their target. A node
splits the head off a non-empty path and forwards the command with the
remaining suffix to the child of that id. An empty path addresses the node
itself. Events travel the other way: a node emits events about itself with
an empty path and every parent prepends the id of the child it heard from
before relaying.

# Lifecycle

	creating --init--> empty --fill--> filling --(fill done)--> ready
	ready --exec--> busy --(exec done)--> dirty

Any other command/state pair is inert: logged, counted, never answered.
A node leaves dirty only when its parent reloads it, which replaces the
hosted page together with its whole subtree.

# Concurrency

The node loop owns all node state. Sandbox calls run in their own
goroutine and report back to the loop; they are interrupted when the page
is cancelled. Children live in windows of a nested backend spawned on the
first init that asks for subworkers.
*/
package worker
