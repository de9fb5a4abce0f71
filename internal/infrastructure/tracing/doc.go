/*
Package tracing correlates bridge requests with launcher log lines.

Each request through the bridge gets a span. The trace and span IDs are
returned in X-Trace-ID and X-Span-ID, and a native shell that sends them back
continues the same trace. Finished spans are logged by a buffered collector,
so a slow logger never blocks a handler.

	tracer := tracing.New(logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

Handlers can read the IDs from the request context:

	traceID := tracing.GetTraceID(c.Request.Context())
*/
package tracing
