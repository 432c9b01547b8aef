package vehicle

import (
	"context"
	"errors"
	"fmt"

	"github.com/AutoBidHub/AutoBidHub/internal/common/apperr"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// WithTx 返回绑定到事务的仓储，供跨实体原子操作使用。
func (r *Repo) WithTx(tx *gorm.DB) *Repo {
	return &Repo{db: tx}
}

func (r *Repo) withCtx(ctx context.Context) (*gorm.DB, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx), nil
}

func (r *Repo) Create(ctx context.Context, v *Vehicle) error {
	db, err := r.withCtx(ctx)
	if err != nil {
		return err
	}
	return db.Create(v).Error
}

func (r *Repo) Save(ctx context.Context, v *Vehicle) error {
	db, err := r.withCtx(ctx)
	if err != nil {
		return err
	}
	return db.Save(v).Error
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	db, err := r.withCtx(ctx)
	if err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&Vehicle{}).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Vehicle, error) {
	db, err := r.withCtx(ctx)
	if err != nil {
		return nil, err
	}
	var v Vehicle
	if err := db.Where("id = ?", id).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("vehicle %s not found", id)
		}
		return nil, err
	}
	return &v, nil
}

func (r *Repo) FindByVIN(ctx context.Context, vin string) (*Vehicle, error) {
	db, err := r.withCtx(ctx)
	if err != nil {
		return nil, err
	}
	var v Vehicle
	if err := db.Where("vin = ?", vin).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("vehicle with VIN %s not found", vin)
		}
		return nil, err
	}
	return &v, nil
}

// SearchFilter 支持按厂牌/型号/年份/可用性过滤 + 分页。
type SearchFilter struct {
	Make          string
	Model         string
	Year          int
	Type          Type
	OnlyAvailable bool
	Offset        int
	Limit         int
}

func (r *Repo) Search(ctx context.Context, f SearchFilter) ([]Vehicle, int64, error) {
	db, err := r.withCtx(ctx)
	if err != nil {
		return nil, 0, err
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := db.Model(&Vehicle{})
	if f.Make != "" {
		q = q.Where("make = ?", f.Make)
	}
	if f.Model != "" {
		q = q.Where("model = ?", f.Model)
	}
	if f.Year > 0 {
		q = q.Where("production_year = ?", f.Year)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.OnlyAvailable {
		q = q.Where("available = ?", true)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var vehicles []Vehicle
	if err := q.Order("created_at DESC").Offset(f.Offset).Limit(f.Limit).Find(&vehicles).Error; err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}
