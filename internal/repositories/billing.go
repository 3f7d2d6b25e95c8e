package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
	"github.com/Julienbatt/DringDring-sub000/internal/models"
)

// BillingRepository provides access to billing periods, runs and
// documents.
type BillingRepository struct {
	db *gorm.DB
}

// NewBillingRepository creates a new billing repository
func NewBillingRepository(db *gorm.DB) *BillingRepository {
	return &BillingRepository{db: db}
}

// GetPeriod returns the frozen period of a shop-month, nil when the
// month is still open.
func (r *BillingRepository) GetPeriod(ctx context.Context, shopID uuid.UUID, monthKey string) (*models.BillingPeriod, error) {
	var period models.BillingPeriod
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND period_month = ?", shopID, monthKey).
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get billing period")
	}
	return &period, nil
}

// InsertPeriod inserts the period row with ON CONFLICT DO NOTHING so
// concurrent freeze winners coexist. It reports whether this caller's
// row was the one committed.
func (r *BillingRepository) InsertPeriod(ctx context.Context, period *models.BillingPeriod) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shop_id"}, {Name: "period_month"}},
			DoNothing: true,
		}).
		Create(period)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "failed to insert billing period")
	}
	return res.RowsAffected > 0, nil
}

// UpsertRun creates or reuses the run of a region-month.
func (r *BillingRepository) UpsertRun(ctx context.Context, regionID uuid.UUID, monthKey string, actor uuid.UUID) (*models.BillingRun, error) {
	run := models.BillingRun{
		ID:            uuid.New(),
		AdminRegionID: regionID,
		PeriodMonth:   monthKey,
		Status:        models.BillingStatusDraft,
		CreatedBy:     actor,
		UpdatedBy:     actor,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "admin_region_id"}, {Name: "period_month"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"updated_by": actor}),
		}).
		Create(&run).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert billing run")
	}

	// Re-read so a pre-existing run keeps its id and status.
	var out models.BillingRun
	err = r.db.WithContext(ctx).
		Where("admin_region_id = ? AND period_month = ?", regionID, monthKey).
		First(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to reload billing run")
	}
	return &out, nil
}

// GetRun loads the run of a region-month.
func (r *BillingRepository) GetRun(ctx context.Context, regionID uuid.UUID, monthKey string) (*models.BillingRun, error) {
	var run models.BillingRun
	err := r.db.WithContext(ctx).
		Where("admin_region_id = ? AND period_month = ?", regionID, monthKey).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("no billing run for %s", monthKey)
		}
		return nil, errors.Wrap(err, "failed to get billing run")
	}
	return &run, nil
}

// FrozenDocuments lists the frozen documents of a run.
func (r *BillingRepository) FrozenDocuments(ctx context.Context, runID uuid.UUID) ([]models.BillingDocument, error) {
	var docs []models.BillingDocument
	err := r.db.WithContext(ctx).
		Where("run_id = ? AND status = ?", runID, models.BillingStatusFrozen).
		Find(&docs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list frozen documents")
	}
	return docs, nil
}

// DeleteDraftDocuments removes the draft documents of a run and their
// lines. Meant to run inside the aggregation transaction.
func (r *BillingRepository) DeleteDraftDocuments(tx *gorm.DB, runID uuid.UUID) error {
	err := tx.
		Where("document_id IN (?)", tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.BillingDocument{}).
			Select("id").
			Where("run_id = ? AND status = ?", runID, models.BillingStatusDraft)).
		Delete(&models.BillingDocumentLine{}).Error
	if err != nil {
		return errors.Wrap(err, "failed to delete draft document lines")
	}
	err = tx.
		Where("run_id = ? AND status = ?", runID, models.BillingStatusDraft).
		Delete(&models.BillingDocument{}).Error
	if err != nil {
		return errors.Wrap(err, "failed to delete draft documents")
	}
	return nil
}

// GetDocument loads a document with its lines.
func (r *BillingRepository) GetDocument(ctx context.Context, id uuid.UUID) (*models.BillingDocument, error) {
	var doc models.BillingDocument
	err := r.db.WithContext(ctx).Preload("Lines").First(&doc, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("billing document %s not found", id)
		}
		return nil, errors.Wrap(err, "failed to get billing document")
	}
	return &doc, nil
}

// ListDocuments lists documents by month and optional recipient type.
func (r *BillingRepository) ListDocuments(ctx context.Context, monthKey, recipientType string) ([]models.BillingDocument, error) {
	q := r.db.WithContext(ctx).Where("period_month = ?", monthKey)
	if recipientType != "" {
		q = q.Where("recipient_type = ?", recipientType)
	}
	var docs []models.BillingDocument
	if err := q.Order("recipient_type, recipient_name").Find(&docs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list billing documents")
	}
	return docs, nil
}

// FreezeDocument records the PDF fields and promotes the document.
func (r *BillingRepository) FreezeDocument(ctx context.Context, id uuid.UUID, pdfURL, sha256 string) error {
	res := r.db.WithContext(ctx).Model(&models.BillingDocument{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           models.BillingStatusFrozen,
			"pdf_url":          pdfURL,
			"pdf_sha256":       sha256,
			"pdf_generated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to freeze billing document")
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("billing document %s not found", id)
	}
	return nil
}

// RunFullyFrozen reports whether every document of the run is frozen.
func (r *BillingRepository) RunFullyFrozen(ctx context.Context, runID uuid.UUID) (bool, error) {
	var total, frozen int64
	err := r.db.WithContext(ctx).Model(&models.BillingDocument{}).
		Where("run_id = ?", runID).Count(&total).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to count run documents")
	}
	err = r.db.WithContext(ctx).Model(&models.BillingDocument{}).
		Where("run_id = ? AND status = ?", runID, models.BillingStatusFrozen).
		Count(&frozen).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to count frozen run documents")
	}
	return total > 0 && total == frozen, nil
}

// PromoteRun flips the run to frozen.
func (r *BillingRepository) PromoteRun(ctx context.Context, runID uuid.UUID, actor uuid.UUID) error {
	err := r.db.WithContext(ctx).Model(&models.BillingRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":     models.BillingStatusFrozen,
			"updated_by": actor,
		}).Error
	if err != nil {
		return errors.Wrap(err, "failed to promote billing run")
	}
	return nil
}
