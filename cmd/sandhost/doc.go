// Command sandhost runs the sandbox tree host. A controller drives it over
// stdin/stdout as JSON lines and, when enabled, over WebSocket at /control.
//
// Configuration comes from the environment, optionally a YAML or TOML file
// given with --config, and finally command-line flags.
package main
