// Package redis implements store.Store using Redis for high-throughput
// workloads where history durability requirements are relaxed. Entities
// are stored as JSON values, ready tasks and due timers use Sorted Sets,
// run journals use Lists with a Lua-guarded append cursor, and leadership
// uses a SET NX lease.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
