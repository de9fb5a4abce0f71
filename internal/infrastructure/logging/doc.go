// Package logging wraps uber/zap for the launcher.
//
// Production builds emit JSON; development builds use colored console output.
// Components receive a *Logger and scope it with Named, so every line carries
// the subsystem that produced it ("launch", "browser", "bridge").
//
//	logger := logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
//	resolver := logger.Named("launch")
//	resolver.Info("Phase changed", zap.String("phase", "remote_content"))
//
// Constructors that take an optional logger call OrNop so a nil logger is
// always safe to use.
package logging
