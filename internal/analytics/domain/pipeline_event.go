package domain

import (
	"context"
	"time"
)

// PipelineEvent es una notificación publicada vista por analítica.
type PipelineEvent struct {
	EventID     string    `json:"eventId"`
	Topic       string    `json:"topic"`
	MatchID     int64     `json:"matchId"`
	PublishedAt time.Time `json:"publishedAt"`
}

// DailyCount agrega eventos por día y topic.
type DailyCount struct {
	Day   time.Time `json:"day"`
	Topic string    `json:"topic"`
	Count uint64    `json:"count"`
}

// PipelineAnalyticsRepository es el almacén columnar de eventos del pipeline.
type PipelineAnalyticsRepository interface {
	LogBatch(ctx context.Context, events []PipelineEvent) error
	GetDailyTrend(ctx context.Context, from, to time.Time) ([]DailyCount, error)
}
