package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ListFilter 目录查询条件。
type ListFilter struct {
	Query      string // 名称模糊匹配
	ActiveOnly bool
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) SaveSupplier(ctx context.Context, s *Supplier) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(s).Error
}

func (r *Repo) GetSupplier(ctx context.Context, id string) (*Supplier, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var s Supplier
	if err := db.Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) FindSupplierByName(ctx context.Context, name string) (*Supplier, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var s Supplier
	if err := db.Where("name = ?", name).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) ListSuppliers(ctx context.Context, f ListFilter) ([]Supplier, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	q := db.Model(&Supplier{})
	if f.Query != "" {
		q = q.Where("name LIKE ?", "%"+f.Query+"%")
	}
	if f.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	var out []Supplier
	if err := q.Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) SaveLubricant(ctx context.Context, l *Lubricant) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(l).Error
}

func (r *Repo) GetLubricant(ctx context.Context, id string) (*Lubricant, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var l Lubricant
	if err := db.Where("id = ?", id).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *Repo) FindLubricantByName(ctx context.Context, name string) (*Lubricant, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var l Lubricant
	if err := db.Where("name = ?", name).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *Repo) ListLubricants(ctx context.Context, f ListFilter) ([]Lubricant, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	q := db.Model(&Lubricant{})
	if f.Query != "" {
		q = q.Where("name LIKE ?", "%"+f.Query+"%")
	}
	if f.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	var out []Lubricant
	if err := q.Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
