/*
Package sandbox provides the script execution substrate hosted by every
sandbox window.

# Overview

Each Runtime is an isolated goja VM. Host globals (require, process, module,
exports) are removed, timers are inert and console output is captured per
call. A runtime is filled once with filler content and may then execute it:

	f(C, A) = entry(C)(A...)

where entry(C) is the completion value of C when callable, otherwise the
global main C defines.

# Limits

  - Call stack depth (Config.MaxCallStack)
  - Per-operation timeout (Config.Timeout, 0 disables it)
  - Context cancellation interrupts the running script

# Usage Example

	rt, _ := sandbox.New(sandbox.DefaultConfig())
	defer rt.Close()

	if err := rt.Fill(ctx, "(function (a, b) { return a + b })", nil); err != nil {
		return err
	}
	result, err := rt.Exec(ctx, []any{1, 2})

# Pooling

Pool keeps warm runtimes. Get never blocks, Put resets the runtime before it
is reused, so no filler or global leaks between windows.
*/
package sandbox
