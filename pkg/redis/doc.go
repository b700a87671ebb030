// Package redis connects readtrack to Redis through go-redis/v9.
//
// Connect parses a redis:// URL, pings the server and retries until it
// answers or the connect timeout elapses. Healthcheck returns a readiness
// probe closure for the ops server.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// The active-session cache built on top of the client lives in
// svc/reading/rediscache.
package redis
