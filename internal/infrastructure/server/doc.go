// Package server wires the launcher together.
//
// New builds the components in dependency order:
//  1. Logger and metrics
//  2. State backend, launch state store and stable install id
//  3. Connectivity monitor, attribution collector and notification gate
//  4. Remote client and launch resolver
//  5. Browsing session manager, with the resolver as its recovery handler
//  6. Bridge router (tracing, metrics, CORS, rate limiting, WebSocket stream)
//
// Run starts probing and resolution, opens the primary browsing surface
// whenever the resolver settles on remote content, and serves the bridge on
// loopback until its context ends.
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.New(ctx, cfg, server.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//	err = srv.Run(ctx)
package server
