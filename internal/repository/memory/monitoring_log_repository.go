package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"exam-proctor-be/internal/entity"
	"exam-proctor-be/internal/repository/contract"
	"exam-proctor-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// MonitoringLogRepository keeps logs per session in process memory. It backs
// deployments without a database; entries expire after the retention window.
type MonitoringLogRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
}

var _ contract.MonitoringLogRepository = (*MonitoringLogRepository)(nil)

func NewMonitoringLogRepository(retention time.Duration) *MonitoringLogRepository {
	c := cache.New(retention, retention/2)
	return &MonitoringLogRepository{
		cache: c,
	}
}

func (r *MonitoringLogRepository) Append(ctx context.Context, log *entity.MonitoringLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if log.Id == uuid.Nil {
		log.Id = uuid.New()
	}
	log.CreatedAt = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var logs []*entity.MonitoringLog
	if x, found := r.cache.Get(log.SessionId); found {
		logs = x.([]*entity.MonitoringLog)
	}
	cp := *log
	r.cache.Set(log.SessionId, append(logs, &cp), cache.DefaultExpiration)
	return nil
}

// FindAll understands the session, exam and activity filters; other
// specifications are ignored. Results are ordered by timestamp.
func (r *MonitoringLogRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.MonitoringLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	var all []*entity.MonitoringLog
	for _, item := range r.cache.Items() {
		all = append(all, item.Object.([]*entity.MonitoringLog)...)
	}
	r.mu.Unlock()

	out := make([]*entity.MonitoringLog, 0, len(all))
	for _, l := range all {
		if matches(l, specs) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *MonitoringLogRepository) CountBySession(ctx context.Context, sessionId string) (int64, error) {
	logs, err := r.FindAll(ctx, specification.BySessionID{SessionID: sessionId})
	return int64(len(logs)), err
}

func matches(l *entity.MonitoringLog, specs []specification.Specification) bool {
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.BySessionID:
			if l.SessionId != s.SessionID {
				return false
			}
		case specification.ByExamID:
			if l.ExamId != s.ExamID {
				return false
			}
		case specification.ByActivityType:
			if l.ActivityType != s.ActivityType {
				return false
			}
		case specification.Since:
			if l.Timestamp.Before(s.From) {
				return false
			}
		}
	}
	return true
}
