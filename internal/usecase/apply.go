package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"db-updater/internal/domain"
)

// apply は更新内容を実行し、掛かった時間をミリ秒で返す。
// 時間は記録用で、照合の判断には使わない。
func (s *UpdateService) apply(ctx context.Context, file *domain.UpdateFile, content []byte) (uint32, error) {
	ctx, span := s.tracer.Start(ctx, "UpdateService.apply",
		trace.WithAttributes(
			attribute.String("updater.file", file.Name),
			attribute.String("updater.state", string(file.State)),
		))
	defer span.End()

	begin := time.Now()
	if err := s.applyFn(ctx, file.Name, content); err != nil {
		slog.ErrorContext(ctx, "failed to apply update",
			"operation", "apply",
			"name", file.Name,
			"file_path", file.Path,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrExecutorFailure, file.Name, err)
	}

	speed := uint32(time.Since(begin).Milliseconds())
	span.SetAttributes(attribute.Int64("updater.speed_ms", int64(speed)))
	return speed, nil
}
