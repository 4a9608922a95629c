// Package store defines the persistence interface.
//
// [Store] embeds job.Store, the conditional single-document operations the
// producer and worker are built on, and adds lifecycle methods:
//
//	type Store interface {
//	    job.Store
//
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/mongo — MongoDB, one document per queue, native update operators
//   - store/redis — Redis, one msgpack value per queue, WATCH/MULTI transactions
//   - store/postgres — PostgreSQL, one jsonb row per queue, row locks
//   - store/memory — in-memory store for development and testing
//
// store/docstore holds the shared implementation used by the redis,
// postgres and memory backends, and store/storetest the conformance suite
// every backend runs.
//
// # Usage
//
//	import "github.com/xraph/docket/store/mongo"
//
//	db, _ := grove.Open(ctx, "mongo", "mongodb://localhost:27017/jobs")
//	s := mongo.New(db)
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	q := queue.New("mail", s)
package store
