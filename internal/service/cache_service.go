package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService caches open availability reads. Every lesson or availability mutation of a
// teacher drops that teacher's entries. A read that overlapped an invalidation in this process
// is not written back (see Generation). An invalidation issued by another instance during a
// read can still leave a stale entry for at most one TTL.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool

	mu          sync.Mutex
	generations map[string]uint64
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		repo:        repo,
		metrics:     metrics,
		defaultTTL:  defaultTTL,
		logger:      logger,
		enabled:     enabled,
		generations: make(map[string]uint64),
	}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate removes cached values for the provided pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// InvalidateTeacher drops the cached open availability of a teacher. Failures are only logged.
func (s *CacheService) InvalidateTeacher(ctx context.Context, teacherID string) {
	if !s.Enabled() {
		return
	}
	s.mu.Lock()
	s.generations[teacherID]++
	s.mu.Unlock()
	_ = s.Invalidate(ctx, availabilityCachePrefix(teacherID)+"*")
}

// Generation returns the invalidation counter of a teacher. Take it before reading the store
// and hand it to SetTeacher.
func (s *CacheService) Generation(teacherID string) uint64 {
	if !s.Enabled() {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[teacherID]
}

// SetTeacher caches a teacher's read unless the teacher was invalidated since generation.
func (s *CacheService) SetTeacher(ctx context.Context, teacherID string, generation uint64, key string, value interface{}, ttl time.Duration) error {
	if s.Generation(teacherID) != generation {
		s.logger.Debug("cache write skipped after invalidation", zap.String("key", key))
		return nil
	}
	return s.Set(ctx, key, value, ttl)
}

func availabilityCachePrefix(teacherID string) string {
	return fmt.Sprintf("availability:%s:", teacherID)
}

func availabilityCacheKey(teacherID, from, to string) string {
	return availabilityCachePrefix(teacherID) + from + ":" + to
}
