package audit

import (
	"context"

	"gorm.io/gorm"

	"github.com/Skotchmaster/farm_dashboard/internal/events"
	"github.com/Skotchmaster/farm_dashboard/internal/models"
)

type GormRepo struct {
	DB *gorm.DB
}

func NewRepo(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db}
}

func (r *GormRepo) Migrate(ctx context.Context) error {
	return r.DB.WithContext(ctx).AutoMigrate(&models.AuthEvent{})
}

func (r *GormRepo) Save(ctx context.Context, ev *models.AuthEvent) error {
	return r.DB.WithContext(ctx).Create(ev).Error
}

// List returns one page of events, newest first, optionally for one username.
func (r *GormRepo) List(ctx context.Context, q Query) ([]models.AuthEvent, error) {
	from, limit := q.Window()

	tx := r.DB.WithContext(ctx).Order("occurred_at DESC").Order("id DESC").Offset(from).Limit(limit)
	if user := q.User(); user != "" {
		tx = tx.Where("username = ?", user)
	}

	var out []models.AuthEvent
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Ping checks the underlying connection for the readiness check.
func (r *GormRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Publish stores an auth event so it implements events.Publisher.
func (r *GormRepo) Publish(ctx context.Context, e events.Event) error {
	return r.Save(ctx, &models.AuthEvent{
		EventID:    e.ID,
		Type:       string(e.Type),
		Username:   e.Username,
		Role:       e.Role,
		Reason:     e.Reason,
		RemoteIP:   e.RemoteIP,
		OccurredAt: e.OccurredAt,
	})
}

var _ events.Publisher = (*GormRepo)(nil)
