package repository

import (
	"context"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"github.com/2024aa05820/mlops-assignment2/pkg/datamodel"

	database "github.com/2024aa05820/mlops-assignment2/pkg/db"
)

// Repository is the prediction audit log. Writes are best-effort from
// the serving path; reads back an operator inspecting traffic.
type Repository interface {
	CreatePrediction(ctx context.Context, record *datamodel.PredictionRecord) error
	GetPredictionByUID(ctx context.Context, uid uuid.UUID) (*datamodel.PredictionRecord, error)
	ListPredictions(ctx context.Context, pageSize int64, page int64) ([]*datamodel.PredictionRecord, int64, error)
	CountPredictionsByClass(ctx context.Context, prediction string) (int64, error)
}

// DefaultPageSize is the default pagination page size when page size is not assigned
const DefaultPageSize = 10

// MaxPageSize is the maximum pagination page size if the assigned value is over this number
const MaxPageSize = 100

type repository struct {
	db *gorm.DB
}

// NewRepository initiates a repository instance
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

// Migrate creates or updates the backing table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&datamodel.PredictionRecord{})
}

func (r *repository) CreatePrediction(ctx context.Context, record *datamodel.PredictionRecord) error {
	if result := r.db.WithContext(ctx).Model(&datamodel.PredictionRecord{}).Create(record); result.Error != nil {
		return result.Error
	}
	return nil
}

func (r *repository) GetPredictionByUID(ctx context.Context, uid uuid.UUID) (*datamodel.PredictionRecord, error) {
	var record datamodel.PredictionRecord
	if result := r.db.WithContext(ctx).Model(&datamodel.PredictionRecord{}).
		Where("uid = ?", uid).
		First(&record); result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, ErrPredictionNotFound
		}
		return nil, result.Error
	}
	return &record, nil
}

func (r *repository) ListPredictions(ctx context.Context, pageSize int64, page int64) ([]*datamodel.PredictionRecord, int64, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page < 0 {
		page = 0
	}

	var totalSize int64
	if result := r.db.WithContext(ctx).Model(&datamodel.PredictionRecord{}).Count(&totalSize); result.Error != nil {
		return nil, 0, result.Error
	}

	var records []*datamodel.PredictionRecord
	if result := r.db.WithContext(ctx).Model(&datamodel.PredictionRecord{}).
		Scopes(database.Paginate(&database.Pagination{
			Limit:  int(pageSize),
			Offset: int(page * pageSize),
			Sort:   "create_time DESC",
		})).
		Find(&records); result.Error != nil {
		return nil, 0, result.Error
	}
	return records, totalSize, nil
}

func (r *repository) CountPredictionsByClass(ctx context.Context, prediction string) (int64, error) {
	var count int64
	if result := r.db.WithContext(ctx).Model(&datamodel.PredictionRecord{}).
		Where("prediction = ?", prediction).
		Count(&count); result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}
