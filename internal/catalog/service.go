package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service 供应商与油品目录的维护入口。
type Service struct {
	repo *Repo
}

func NewService(repo *Repo) *Service {
	return &Service{repo: repo}
}

// UpsertSupplierInput 供应商入参。ID 为空时新建。
type UpsertSupplierInput struct {
	ID    string
	Name  string
	TaxID string
	Phone string
	City  string
}

func (s *Service) UpsertSupplier(ctx context.Context, in UpsertSupplierInput) (*Supplier, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	name := NormalizeName(in.Name)
	if name == "" {
		return nil, fmt.Errorf("supplier name is required")
	}

	sup := &Supplier{ID: strings.TrimSpace(in.ID), Active: true}
	if sup.ID != "" {
		existing, err := s.repo.GetSupplier(ctx, sup.ID)
		if err != nil {
			return nil, err
		}
		sup = existing
	} else {
		sup.ID = uuid.NewString()
	}

	sup.Name = name
	sup.TaxID = NormalizeTaxID(in.TaxID)
	sup.Phone = strings.TrimSpace(in.Phone)
	sup.City = strings.TrimSpace(in.City)

	if err := s.repo.SaveSupplier(ctx, sup); err != nil {
		return nil, err
	}
	return sup, nil
}

func (s *Service) GetSupplier(ctx context.Context, id string) (*Supplier, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.repo.GetSupplier(ctx, strings.TrimSpace(id))
}

func (s *Service) ListSuppliers(ctx context.Context, f ListFilter) ([]Supplier, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.repo.ListSuppliers(ctx, f)
}

// SetSupplierActive 停用/恢复供应商。被记录引用过的供应商不做物理删除。
func (s *Service) SetSupplierActive(ctx context.Context, id string, active bool) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	sup, err := s.repo.GetSupplier(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if sup.Active == active {
		return nil
	}
	sup.Active = active
	return s.repo.SaveSupplier(ctx, sup)
}

// EnsureSupplier 按名称取供应商，不存在就建一个。导入历史表格时用。
func (s *Service) EnsureSupplier(ctx context.Context, name string) (*Supplier, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	name = NormalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("supplier name is required")
	}
	sup, err := s.repo.FindSupplierByName(ctx, name)
	if err == nil {
		return sup, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	sup = &Supplier{ID: uuid.NewString(), Name: name, Active: true}
	if err := s.repo.SaveSupplier(ctx, sup); err != nil {
		return nil, err
	}
	return sup, nil
}

// UpsertLubricantInput 油品入参。ID 为空时新建。
type UpsertLubricantInput struct {
	ID   string
	Name string
	Kind string
	Unit string
}

func (s *Service) UpsertLubricant(ctx context.Context, in UpsertLubricantInput) (*Lubricant, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	name := NormalizeName(in.Name)
	if name == "" {
		return nil, fmt.Errorf("lubricant name is required")
	}

	lub := &Lubricant{ID: strings.TrimSpace(in.ID), Active: true}
	if lub.ID != "" {
		existing, err := s.repo.GetLubricant(ctx, lub.ID)
		if err != nil {
			return nil, err
		}
		lub = existing
	} else {
		lub.ID = uuid.NewString()
	}

	lub.Name = name
	lub.Kind = strings.ToLower(strings.TrimSpace(in.Kind))
	lub.Unit = strings.TrimSpace(in.Unit)
	if lub.Unit == "" {
		lub.Unit = "L"
	}

	if err := s.repo.SaveLubricant(ctx, lub); err != nil {
		return nil, err
	}
	return lub, nil
}

func (s *Service) GetLubricant(ctx context.Context, id string) (*Lubricant, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.repo.GetLubricant(ctx, strings.TrimSpace(id))
}

func (s *Service) ListLubricants(ctx context.Context, f ListFilter) ([]Lubricant, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.repo.ListLubricants(ctx, f)
}

// SetLubricantActive 停用/恢复油品。
func (s *Service) SetLubricantActive(ctx context.Context, id string, active bool) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	lub, err := s.repo.GetLubricant(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if lub.Active == active {
		return nil
	}
	lub.Active = active
	return s.repo.SaveLubricant(ctx, lub)
}

// EnsureLubricant 按名称取油品，不存在就建一个。
func (s *Service) EnsureLubricant(ctx context.Context, name string) (*Lubricant, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	name = NormalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("lubricant name is required")
	}
	lub, err := s.repo.FindLubricantByName(ctx, name)
	if err == nil {
		return lub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	lub = &Lubricant{ID: uuid.NewString(), Name: name, Unit: "L", Active: true}
	if err := s.repo.SaveLubricant(ctx, lub); err != nil {
		return nil, err
	}
	return lub, nil
}

// NormalizeName 压掉多余空白，保留原大小写。
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeTaxID 税号只留数字（CNPJ 带点杠的写法都归一）。
func NormalizeTaxID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
