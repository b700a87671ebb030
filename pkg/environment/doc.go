// Package environment names the deployment environment a readtrack process
// runs in and carries it through context.Context so that loggers and
// background workers can tag their output with it.
//
// Parse accepts the canonical names as well as the short aliases commonly
// found in APP_ENV variables ("dev", "stage", "prod"):
//
//	env := environment.Parse(os.Getenv("APP_ENV"))
//	ctx = environment.WithContext(ctx, env)
//
//	if environment.IsProduction(ctx) {
//	    // production-only behaviour
//	}
//
// LoggerExtractor plugs into logger.WithContextExtractors and adds an "env"
// attribute to every record logged with such a context.
package environment
