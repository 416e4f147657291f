// README: Tracking store backed by Redis GEO, per-session state keys and pub/sub.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"stride/internal/geo"
	"stride/internal/modules/session"
)

const (
	positionsGeoKey = "tracking:positions"
	stateKeyPrefix  = "tracking:session:%s:state"
	channelPrefix   = "tracking:"
	channelSuffix   = ":updates"
	// TTL for state keys; a session idle this long is considered abandoned.
	keyTTL = 24 * time.Hour
)

var ErrNotFound = errors.New("tracking: not found")

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// Publish records the latest position and state of a session and fans the
// update out on the session's channel, in one round trip.
func (s *Store) Publish(ctx context.Context, u session.Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("tracking: marshal update: %w", err)
	}

	pipe := s.redis.TxPipeline()
	if u.Position != nil {
		pipe.GeoAdd(ctx, positionsGeoKey, &redis.GeoLocation{
			Name:      u.SessionID,
			Longitude: u.Position.Lng,
			Latitude:  u.Position.Lat,
		})
	}
	if u.Status.Terminal() {
		pipe.ZRem(ctx, positionsGeoKey, u.SessionID)
	}
	pipe.Set(ctx, stateKey(u.SessionID), payload, keyTTL)
	pipe.Publish(ctx, channel(u.SessionID), payload)
	_, err = pipe.Exec(ctx)
	return err
}

// Latest returns the last published update for a session.
func (s *Store) Latest(ctx context.Context, sessionID string) (session.Update, error) {
	val, err := s.redis.Get(ctx, stateKey(sessionID)).Bytes()
	if err == redis.Nil {
		return session.Update{}, ErrNotFound
	}
	if err != nil {
		return session.Update{}, err
	}
	var u session.Update
	if err := json.Unmarshal(val, &u); err != nil {
		return session.Update{}, fmt.Errorf("tracking: unmarshal state: %w", err)
	}
	return u, nil
}

// Nearby lists live sessions within radiusKm of p, closest first.
func (s *Store) Nearby(ctx context.Context, p geo.Point, radiusKm float64) ([]string, error) {
	results, err := s.redis.GeoRadius(ctx, positionsGeoKey, p.Lng, p.Lat, &redis.GeoRadiusQuery{
		Radius: radiusKm,
		Unit:   "km",
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Name
	}
	return ids, nil
}

// Remove drops all live data for a session.
func (s *Store) Remove(ctx context.Context, sessionID string) error {
	pipe := s.redis.Pipeline()
	pipe.ZRem(ctx, positionsGeoKey, sessionID)
	pipe.Del(ctx, stateKey(sessionID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) subscribeAll(ctx context.Context) (*redis.PubSub, error) {
	ps := s.redis.PSubscribe(ctx, channelPrefix+"*"+channelSuffix)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("tracking: subscribe: %w", err)
	}
	return ps, nil
}

func stateKey(sessionID string) string {
	return fmt.Sprintf(stateKeyPrefix, sessionID)
}

func channel(sessionID string) string {
	return channelPrefix + sessionID + channelSuffix
}

// sessionFromChannel reverses channel.
func sessionFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) ||
		len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
