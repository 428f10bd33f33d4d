package repository

import (
	"context"
	"leadwallet/internal/model"
	"time"

	"gorm.io/gorm"
)

type AttemptRepository interface {
	Create(ctx context.Context, attempt *model.CheckoutAttempt) error
	FindByID(ctx context.Context, id string) (*model.CheckoutAttempt, error)
	UpdateStatus(ctx context.Context, id string, update AttemptUpdate) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.CheckoutAttempt, error)
	ListUnresolvedFailures(ctx context.Context, category string) ([]*model.CheckoutAttempt, error)
	MarkResolved(ctx context.Context, id string) error
}

// AttemptUpdate carries the columns written on a state transition. Empty
// strings leave the stored value untouched.
type AttemptUpdate struct {
	Status           model.AttemptStatus
	GatewayOrderID   string
	GatewayPaymentID string
	Category         string
	Message          string
}

type attemptRepoImpl struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepoImpl{
		db: db,
	}
}

func (r *attemptRepoImpl) Create(ctx context.Context, attempt *model.CheckoutAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *attemptRepoImpl) FindByID(ctx context.Context, id string) (*model.CheckoutAttempt, error) {
	var attempt model.CheckoutAttempt
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&attempt).Error

	if err != nil {
		return nil, err
	}

	return &attempt, nil
}

func (r *attemptRepoImpl) UpdateStatus(ctx context.Context, id string, update AttemptUpdate) error {
	columns := map[string]interface{}{
		"status":     update.Status,
		"updated_at": time.Now(),
	}
	if update.GatewayOrderID != "" {
		columns["gateway_order_id"] = update.GatewayOrderID
	}
	if update.GatewayPaymentID != "" {
		columns["gateway_payment_id"] = update.GatewayPaymentID
	}
	if update.Category != "" {
		columns["category"] = update.Category
	}
	if update.Message != "" {
		columns["message"] = update.Message
	}

	result := r.db.WithContext(ctx).Model(&model.CheckoutAttempt{}).
		Where("id = ?", id).
		Updates(columns)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *attemptRepoImpl) ListByUser(ctx context.Context, userID string, limit int) ([]*model.CheckoutAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	var attempts []*model.CheckoutAttempt
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&attempts).Error

	if err != nil {
		return nil, err
	}

	return attempts, nil
}

// ListUnresolvedFailures returns failed attempts support has not closed yet,
// oldest first. An empty category matches every failure.
func (r *attemptRepoImpl) ListUnresolvedFailures(ctx context.Context, category string) ([]*model.CheckoutAttempt, error) {
	q := r.db.WithContext(ctx).
		Where("status = ?", model.AttemptStatusFailed).
		Where("resolved = ?", false)
	if category != "" {
		q = q.Where("category = ?", category)
	}

	var attempts []*model.CheckoutAttempt
	if err := q.Order("created_at ASC").Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *attemptRepoImpl) MarkResolved(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&model.CheckoutAttempt{}).
		Where("id = ? AND status = ?", id, model.AttemptStatusFailed).
		Updates(map[string]interface{}{
			"resolved":   true,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
