// Package readtrack assembles the reading session lifecycle engine.
//
// An Engine bundles the session Manager, the analytics Aggregator, the
// orphan Reaper and the position write-back queue over one durable store,
// and runs the background parts (queue drain and periodic reaper sweeps)
// until its context is cancelled.
//
//	store := pgstore.New(pool)
//	engine, err := readtrack.New(store, cfg.Reading,
//		readtrack.WithCache(cache),
//		readtrack.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//	go engine.Run(ctx)
//
//	s, err := engine.Sessions.StartSession(ctx, userID, bookID, 12.5, "ios")
//
// Engine.Run returns after the write-back queue has flushed what it still
// holds and every in-flight sweep has returned.
package readtrack
