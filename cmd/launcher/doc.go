// Package main is the entry point for the launcher.
//
// The launcher decides, once per process start, which experience the app
// shows and drives the embedded browsing session when that is remote content:
//
//	native shell → bridge (HTTP + WebSocket on loopback) → launch resolver
//	                                                      → browsing sessions
//
// Commands:
//   - serve: resolve, drive sessions and serve the bridge
//   - resolve: run one resolution pass and print the phase
//   - state show | state reset: inspect or clear the persisted state
//
// Configuration:
//   - Environment variables (12-factor)
//   - Flags override the state location and output format
//
// Usage:
//
//	launcher serve
//	launcher resolve --attribution '{"af_status":"Organic"}' --format json
//	launcher state show --state ./launcher-state.db
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
