package signing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Guard admits at most one signing per patient id at a time.
type Guard interface {
	// TryAcquire returns ok=false when id is already in flight. release must
	// be called once the signing ends.
	TryAcquire(ctx context.Context, id int64) (release func(), ok bool, err error)
}

type localGuard struct {
	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// NewLocalGuard guards within a single process.
func NewLocalGuard() Guard {
	return &localGuard{inFlight: make(map[int64]struct{})}
}

func (g *localGuard) TryAcquire(_ context.Context, id int64) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[id]; busy {
		return nil, false, nil
	}
	g.inFlight[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, id)
			g.mu.Unlock()
		})
	}, true, nil
}

// Deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extends the lock only if it still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type redisGuard struct {
	client       *redis.Client
	ttl          time.Duration
	refreshEvery time.Duration
	log          zerolog.Logger
}

// NewRedisGuard shares the in-flight set between the API and the worker.
// The holder keeps extending the lock while it signs, so ttl only bounds how
// long a crashed holder can block a record.
func NewRedisGuard(client *redis.Client, ttl time.Duration, log zerolog.Logger) Guard {
	return &redisGuard{
		client:       client,
		ttl:          ttl,
		refreshEvery: ttl / 3,
		log:          log.With().Str("component", "signing_guard").Logger(),
	}
}

func lockKey(id int64) string {
	return fmt.Sprintf("signing:lock:%d", id)
}

func (g *redisGuard) TryAcquire(ctx context.Context, id int64) (func(), bool, error) {
	key := lockKey(id)
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire signing lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go g.keepAlive(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			if err := releaseScript.Run(context.Background(), g.client, []string{key}, token).Err(); err != nil {
				g.log.Error().Err(err).Int64("patient_id", id).Msg("failed to release signing lock")
			}
		})
	}, true, nil
}

func (g *redisGuard) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if g.refreshEvery <= 0 {
		<-stop
		return
	}

	ticker := time.NewTicker(g.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := refreshScript.Run(context.Background(), g.client, []string{key}, token, g.ttl.Milliseconds()).Int()
			if err != nil {
				g.log.Warn().Err(err).Str("key", key).Msg("failed to extend signing lock")
				continue
			}
			if held == 0 {
				g.log.Warn().Str("key", key).Msg("signing lock lost before release")
				return
			}
		}
	}
}
