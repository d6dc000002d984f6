// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/research-orchestrator/internal/logx"
)

// RedisConfig is read from MEMORY_REDIS_* environment variables.
type RedisConfig struct {
	URL          string `split_words:"true" required:"true"`
	ReadTimeout  int    `split_words:"true" default:"3"`
	WriteTimeout int    `split_words:"true" default:"3"`
	DialTimeout  int    `split_words:"true" default:"5"`
	MaxTurns     int    `split_words:"true" default:"500"`
	TTLHours     int    `envconfig:"TTL_HOURS" default:"0"`
}

// LoadRedisConfig processes the MEMORY_REDIS_ environment prefix.
func LoadRedisConfig() (RedisConfig, error) {
	var cfg RedisConfig
	if err := envconfig.Process("memory_redis", &cfg); err != nil {
		return RedisConfig{}, fmt.Errorf("reading redis memory config: %w", err)
	}
	return cfg, nil
}

// New connects and pings the server.
func (c RedisConfig) New(ctx context.Context) (*redis.Client, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.ReadTimeout = time.Duration(c.ReadTimeout) * time.Second
	opts.WriteTimeout = time.Duration(c.WriteTimeout) * time.Second
	opts.DialTimeout = time.Duration(c.DialTimeout) * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// RedisStore keeps a capped list of JSON-encoded turns per profile and
// ranks them by term overlap on read.
type RedisStore struct {
	rdb      redis.UniversalClient
	maxTurns int64
	ttl      time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.UniversalClient, cfg RedisConfig) *RedisStore {
	maxTurns := int64(cfg.MaxTurns)
	if maxTurns <= 0 {
		maxTurns = 500
	}
	return &RedisStore{rdb: rdb, maxTurns: maxTurns, ttl: time.Duration(cfg.TTLHours) * time.Hour}
}

const profilesKey = "memory:profiles"

func turnsKey(profile string) string {
	return fmt.Sprintf("memory:%s:turns", profile)
}

// Add appends a turn and trims the profile's list to the newest maxTurns.
func (s *RedisStore) Add(ctx context.Context, turn Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	b, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	key := turnsKey(turn.Profile)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, b)
	pipe.LTrim(ctx, key, -s.maxTurns, -1)
	pipe.SAdd(ctx, profilesKey, turn.Profile)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push turn to redis")
		return fmt.Errorf("redis add: %w", err)
	}
	return nil
}

// Search scores every stored turn by how many query terms it contains and
// returns the best matches, newest first among equal scores.
func (s *RedisStore) Search(ctx context.Context, profile, query string, limit int) ([]Turn, error) {
	turns, err := s.load(ctx, profile)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	return rankByOverlap(turns, searchTerms(query, 32), limit), nil
}

// All returns the profile's turns oldest first; an empty profile lists
// every known profile.
func (s *RedisStore) All(ctx context.Context, profile string) ([]Turn, error) {
	if profile != "" {
		return s.load(ctx, profile)
	}
	profiles, err := s.rdb.SMembers(ctx, profilesKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	sort.Strings(profiles)

	var all []Turn
	for _, p := range profiles {
		turns, err := s.load(ctx, p)
		if err != nil {
			return nil, err
		}
		all = append(all, turns...)
	}
	return all, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) load(ctx context.Context, profile string) ([]Turn, error) {
	key := turnsKey(profile)
	rows, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis load %s: %w", key, err)
	}

	turns := make([]Turn, 0, len(rows))
	for i, row := range rows {
		var t Turn
		if err := json.Unmarshal([]byte(row), &t); err != nil {
			logx.Warn().Err(err).Str("key", key).Int("index", i).Msg("skipping undecodable turn")
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// rankByOverlap keeps turns sharing at least one term with the query.
func rankByOverlap(turns []Turn, terms []string, limit int) []Turn {
	if len(terms) == 0 {
		return nil
	}
	type scored struct {
		turn  Turn
		score int
		pos   int
	}
	var hits []scored
	for i, t := range turns {
		text := strings.ToLower(t.User + "\n" + t.Reply)
		score := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{turn: t, score: score, pos: i})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].pos > hits[j].pos
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Turn, len(hits))
	for i, h := range hits {
		out[i] = h.turn
	}
	return out
}
