// Package ratelimit implements fixed-window admission control backed by
// Redis. The window is an approximation: up to 2x the limit can pass across
// a window boundary, which is acceptable for abuse deterrence.
package ratelimit

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/lingolink/realtime-core/internal/metrics"
)

// incrWithTTL atomically increments the window counter, attaching the TTL on
// first touch. A plain INCR-then-EXPIRE pair would race under concurrent
// requests and could leave a counter without expiry.
var incrWithTTL = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`)

type Limiter struct {
	rdb redis.UniversalClient
}

func New(rdb redis.UniversalClient) *Limiter {
	return &Limiter{rdb: rdb}
}

// Check admits or rejects one request for the identifier. The first request
// in a window creates the counter with TTL = window; once the count reaches
// the limit, further requests are rejected until the TTL lapses. Redis being
// unreachable fails OPEN so a cache outage cannot cascade into a full
// service outage.
func (l *Limiter) Check(ctx context.Context, identifier string, limit, windowSeconds int) (allowed bool, remaining int) {
	count, err := incrWithTTL.Run(ctx, l.rdb, []string{"ratelimit:" + identifier}, windowSeconds).Int()
	if err != nil {
		log.Printf("metric=ratelimit_check status=failopen identifier=%s err=%q", identifier, err.Error())
		metrics.Default().IncCounter("lingo_ratelimit_decisions_total", map[string]string{"outcome": "failopen"})
		return true, limit
	}
	if count > limit {
		metrics.Default().IncCounter("lingo_ratelimit_decisions_total", map[string]string{"outcome": "rejected"})
		return false, 0
	}
	metrics.Default().IncCounter("lingo_ratelimit_decisions_total", map[string]string{"outcome": "allowed"})
	return true, limit - count
}
