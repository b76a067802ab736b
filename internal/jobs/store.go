package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/audiostudio/api/internal/model"
)

const (
	jobKeyPrefix = "job:"
	jobIndexKey  = "jobs:index"
)

// Store persists full job snapshots keyed by job id and reloads them after
// a restart. Every mutating Manager call writes through it.
type Store interface {
	Save(ctx context.Context, job *model.Job) error
	LoadAll(ctx context.Context) ([]*model.Job, error)
}

// RedisStore keeps one JSON snapshot per job at job:{id} plus a jobs:index
// ZSET scored by createdAt so listing order survives restarts.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a snapshot store. A zero ttl keeps snapshots forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job snapshot: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKeyPrefix+job.ID, data, s.ttl)
		pipe.ZAdd(ctx, jobIndexKey, redis.Z{
			Score:  float64(job.CreatedAt.UnixMilli()),
			Member: job.ID,
		})
		return nil
	})
	return err
}

func (s *RedisStore) LoadAll(ctx context.Context) ([]*model.Job, error) {
	ids, err := s.client.ZRevRange(ctx, jobIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*model.Job, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		data, err := s.client.Get(ctx, jobKeyPrefix+id).Bytes()
		if err == redis.Nil {
			// Snapshot expired; drop the index entry.
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			log.Printf("Dropping unreadable job snapshot %s: %v", id, err)
			stale = append(stale, id)
			continue
		}
		jobs = append(jobs, &job)
	}
	if len(stale) > 0 {
		s.client.ZRem(ctx, jobIndexKey, stale...)
	}
	return jobs, nil
}

// MemoryStore is an in-process Store used by tests.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*model.Job)}
}

func (s *MemoryStore) Save(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) LoadAll(ctx context.Context) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out, nil
}
