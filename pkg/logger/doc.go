// Package logger builds the *slog.Logger used across readtrack.
//
// New takes functional options and produces a logger whose handler is wrapped
// in a LogHandlerDecorator. The decorator runs registered ContextExtractor
// callbacks on every record, which is how request- or job-scoped values (the
// environment, a sweep policy name) reach log lines without being passed
// around explicitly.
//
//	log := logger.New(
//	    logger.WithEnvironment(environment.Production, "readtrackd"),
//	    logger.WithContextExtractors(environment.LoggerExtractor()),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "session started",
//	    logger.UserID(userID),
//	    logger.SessionID(sessionID),
//	)
//
// Attribute helpers in attr.go keep key names consistent between packages.
// Helpers that take an error or an identifier return an empty slog.Attr for
// nil input, so they can be used without a nil check.
package logger
