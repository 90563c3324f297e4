// SPDX-License-Identifier: MIT

// Package synchronizer serializes concurrent track requests touching the
// same profile. Sources with profile synchronization enabled acquire a
// short-lived Redis lease keyed by profile id before the pipeline runs, so
// profile writes for one profile are totally ordered.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/trackdhq/trackd/internal/log"
	"github.com/trackdhq/trackd/internal/metrics"
)

// ErrLockTimeout is returned when the lease could not be acquired within the
// configured probes. Callers surface it as a transient failure.
var ErrLockTimeout = errors.New("profile lock not acquired within the configured repeats")

// ErrLockUnavailable is returned when the lock store cannot be reached.
var ErrLockUnavailable = errors.New("profile lock store unavailable")

// releaseScript deletes the lease only when it still carries our token, so a
// lease that expired and was re-acquired by another request is never revoked.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ProfileTracks is the cross-request profile lock table.
type ProfileTracks struct {
	client     *redis.Client
	wait       time.Duration
	maxRepeats int
	logger     zerolog.Logger
}

// New builds the synchronizer. wait is the pause between lock probes and
// maxRepeats bounds how many probes a request makes before giving up.
func New(client *redis.Client, wait time.Duration, maxRepeats int) *ProfileTracks {
	return &ProfileTracks{
		client:     client,
		wait:       wait,
		maxRepeats: maxRepeats,
		logger:     log.WithComponent("synchronizer"),
	}
}

func lockKey(profileID string) string {
	return "profile-tracks:" + profileID
}

// leaseTTL bounds how long a crashed holder can block others.
func (s *ProfileTracks) leaseTTL() time.Duration {
	return s.wait*time.Duration(s.maxRepeats) + 5*time.Second
}

// WithLock runs fn under the lease for the profile id. An empty id resolves
// to a no-op scope: the payload carries no profile, there is nothing to
// serialize. The lease is released on every exit path.
func (s *ProfileTracks) WithLock(ctx context.Context, profileID string, fn func() error) error {
	if profileID == "" {
		return fn()
	}

	key := lockKey(profileID)
	token := uuid.NewString()

	waitStart := time.Now()
	acquired := false
	for attempt := 0; attempt <= s.maxRepeats; attempt++ {
		ok, err := s.client.SetNX(ctx, key, token, s.leaseTTL()).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
		if ok {
			acquired = true
			break
		}
		if attempt == s.maxRepeats {
			break
		}
		s.logger.Debug().Str("profile_id", profileID).Int("attempt", attempt+1).Msg("profile locked, waiting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.wait):
		}
	}
	metrics.ProfileLockWait.Observe(time.Since(waitStart).Seconds())
	if !acquired {
		return ErrLockTimeout
	}

	defer func() {
		// Release must not inherit a cancelled request context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, s.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			s.logger.Warn().Err(err).Str("profile_id", profileID).Msg("profile lock release failed")
		}
	}()

	return fn()
}
