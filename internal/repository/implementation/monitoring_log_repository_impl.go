package implementation

import (
	"context"
	"encoding/json"

	"exam-proctor-be/internal/entity"
	"exam-proctor-be/internal/model"
	"exam-proctor-be/internal/repository/contract"
	"exam-proctor-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type monitoringLogRepositoryImpl struct {
	db *gorm.DB
}

func NewMonitoringLogRepository(db *gorm.DB) contract.MonitoringLogRepository {
	return &monitoringLogRepositoryImpl{db: db}
}

func (r *monitoringLogRepositoryImpl) Append(ctx context.Context, log *entity.MonitoringLog) error {
	if log.Id == uuid.Nil {
		log.Id = uuid.New()
	}

	m, err := r.mapToModel(log)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	log.CreatedAt = m.CreatedAt
	return nil
}

func (r *monitoringLogRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.MonitoringLog, error) {
	var models []*model.MonitoringLog
	query := r.db.WithContext(ctx)

	for _, spec := range specs {
		query = spec.Apply(query)
	}

	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	logs := make([]*entity.MonitoringLog, 0, len(models))
	for _, m := range models {
		logs = append(logs, r.mapToEntity(m))
	}
	return logs, nil
}

func (r *monitoringLogRepositoryImpl) CountBySession(ctx context.Context, sessionId string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.MonitoringLog{}).
		Scopes(specification.BySessionID{SessionID: sessionId}.Apply).
		Count(&count).Error
	return count, err
}

func (r *monitoringLogRepositoryImpl) mapToModel(log *entity.MonitoringLog) (*model.MonitoringLog, error) {
	m := &model.MonitoringLog{
		Id:              log.Id,
		SessionId:       log.SessionId,
		ExamId:          log.ExamId,
		StudentId:       log.StudentId,
		ActivityType:    log.ActivityType,
		ConfidenceScore: log.ConfidenceScore,
		Timestamp:       log.Timestamp,
	}
	if log.Details != nil {
		raw, err := json.Marshal(log.Details)
		if err != nil {
			return nil, err
		}
		m.Details = datatypes.JSON(raw)
	}
	if log.EvidenceId != "" {
		m.EvidenceId = &log.EvidenceId
	}
	if log.VideoFramePath != "" {
		m.VideoFramePath = &log.VideoFramePath
	}
	return m, nil
}

func (r *monitoringLogRepositoryImpl) mapToEntity(m *model.MonitoringLog) *entity.MonitoringLog {
	log := &entity.MonitoringLog{
		Id:              m.Id,
		SessionId:       m.SessionId,
		ExamId:          m.ExamId,
		StudentId:       m.StudentId,
		ActivityType:    m.ActivityType,
		ConfidenceScore: m.ConfidenceScore,
		Timestamp:       m.Timestamp,
		CreatedAt:       m.CreatedAt,
	}
	if len(m.Details) > 0 {
		_ = json.Unmarshal(m.Details, &log.Details)
	}
	if m.EvidenceId != nil {
		log.EvidenceId = *m.EvidenceId
	}
	if m.VideoFramePath != nil {
		log.VideoFramePath = *m.VideoFramePath
	}
	return log
}
