/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the sandbox
host, tracking controller traffic, the sandbox tree, script execution and the
HTTP surface. Each Metrics value owns its registry.

# Features

- Controller command and event counters by type
- Open window gauge and reload counter across every depth
- Routing, protocol and inert-command counters
- Sandbox fill/exec outcomes and latency
- HTTP request metrics and WebSocket connection metrics
- Process and Go runtime collectors, uptime

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Time sandbox operations
	timer := monitoring.NewTimer(metrics, "exec")
	// ... run script ...
	timer.Stop("success")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
