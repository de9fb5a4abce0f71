/*
Package monitoring provides metrics collection for the launcher.

# Overview

Metrics live on a private Prometheus registry so several collectors can
coexist in one process (tests, embedded shells). A nil *Metrics is accepted
everywhere and records nothing.

# Features

- Launch phase transitions
- Remote call outcomes and latency (organic re-check, session config)
- Redirect counts and redirect-loop recoveries
- Child surface gauge and external opens
- Bridge HTTP request and WebSocket metrics

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "session_config")
	defer timer.Stop("ok")
*/
package monitoring
