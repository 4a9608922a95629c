// Package mongo implements store.Store on MongoDB through a grove handle.
// Each queue is one document in the docket_queues collection and every
// operation is a single conditional update using native operators ($inc,
// $push, $pop, $addToSet, $pull and positional jobs.$ writes), so no
// operation needs a transaction.
//
// The updates go to the v2 driver collection unwrapped from the grove DB.
// The caller owns the *grove.DB lifecycle; Close never closes it:
//
//	db, _ := grove.Open(ctx, "mongo", "mongodb://localhost:27017/app")
//	s := mongo.New(db)
//	if err := s.Migrate(ctx); err != nil { ... }
package mongo
