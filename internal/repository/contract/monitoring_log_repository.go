package contract

import (
	"context"

	"exam-proctor-be/internal/entity"
	"exam-proctor-be/internal/repository/specification"
)

type MonitoringLogRepository interface {
	Append(ctx context.Context, log *entity.MonitoringLog) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.MonitoringLog, error)
	CountBySession(ctx context.Context, sessionId string) (int64, error)
}
