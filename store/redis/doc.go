// Package redis implements store.Store on Redis.
//
// Each queue document is one value at "docket:queue:{name}", encoded with
// msgpack by default (JSON via WithCodec). Every operation reads the value
// under WATCH, applies the change, and writes it back in MULTI/EXEC; a
// concurrent writer aborts the transaction and the update is retried.
//
// The caller owns the client lifecycle: Close never closes it.
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
