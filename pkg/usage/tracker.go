package usage

import (
	"sort"
	"sync"
	"time"

	"campus-assistant-be/internal/dto"
	"campus-assistant-be/internal/pkg/logger"
)

type modelStats struct {
	provider     string
	requests     int
	failures     int
	fallbacks    int
	totalLatency time.Duration
	lastUsedAt   time.Time
}

// Tracker aggregates answered-question events per model, in memory.
type Tracker struct {
	mu     sync.Mutex
	since  time.Time
	models map[string]*modelStats
	logger logger.ILogger
}

func NewTracker(log logger.ILogger) *Tracker {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Tracker{
		since:  time.Now(),
		models: make(map[string]*modelStats),
		logger: log,
	}
}

func (t *Tracker) Record(msg dto.QuestionAnsweredMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats, ok := t.models[msg.Model]
	if !ok {
		stats = &modelStats{}
		t.models[msg.Model] = stats
	}
	stats.provider = msg.Provider
	stats.requests++
	if !msg.Succeeded {
		stats.failures++
	}
	if msg.Retried {
		stats.fallbacks++
	}
	stats.totalLatency += time.Duration(msg.ElapsedMs) * time.Millisecond
	if msg.AnsweredAt.After(stats.lastUsedAt) {
		stats.lastUsedAt = msg.AnsweredAt
	}

	t.logger.Debug("USAGE", "question recorded", map[string]interface{}{
		"model":    msg.Model,
		"requests": stats.requests,
	})
}

// Snapshot returns per-model usage, busiest model first.
func (t *Tracker) Snapshot() *dto.UsageResponse {
	t.mu.Lock()
	defer t.mu.Unlock()

	res := &dto.UsageResponse{Since: t.since, Models: make([]dto.ModelUsage, 0, len(t.models))}
	for name, s := range t.models {
		u := dto.ModelUsage{
			Model:     name,
			Provider:  s.provider,
			Requests:  s.requests,
			Failures:  s.failures,
			Fallbacks: s.fallbacks,
		}
		if s.requests > 0 {
			u.AvgLatencyMs = (s.totalLatency / time.Duration(s.requests)).Milliseconds()
		}
		if !s.lastUsedAt.IsZero() {
			last := s.lastUsedAt
			u.LastUsedAt = &last
		}
		res.TotalRequests += s.requests
		res.TotalFailures += s.failures
		res.Models = append(res.Models, u)
	}

	sort.Slice(res.Models, func(i, j int) bool {
		if res.Models[i].Requests != res.Models[j].Requests {
			return res.Models[i].Requests > res.Models[j].Requests
		}
		return res.Models[i].Model < res.Models[j].Model
	})
	return res
}
