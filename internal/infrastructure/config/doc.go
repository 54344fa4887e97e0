// Package config provides 12-factor configuration management for the sandbox host.
//
// Configuration is loaded from environment variables with sensible defaults,
// or from a YAML or TOML file. CLI flags can override either source.
//
// Configuration Sections:
//   - Engine: backend engine type, hosted sand page, prelude pages directory
//   - Sandbox: script timeout, call stack limit, console capture, warm pool size
//   - Transport: stdio controller channel, HTTP/websocket listener
//   - Logging: Log level, output format and buffered log file
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Engine %s hosting %q\n", cfg.Engine.Type, cfg.Engine.Sand)
//
// Environment Variables:
//   - ENGINE, SAND, PAGES_DIR
//   - SANDBOX_TIMEOUT, SANDBOX_CALL_STACK, SANDBOX_CONSOLE, SANDBOX_POOL
//   - STDIO, HTTP_ENABLED, HOST, PORT
//   - LOG_LEVEL, LOG_DEV, LOG_FILE, LOG_FLUSH_INTERVAL
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
