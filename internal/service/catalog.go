package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/repository"
	"github.com/shopspring/decimal"
)

// TagService manages lead labels
type TagService struct {
	tags TagStore
}

func NewTagService(tags TagStore) *TagService {
	return &TagService{tags: tags}
}

type TagInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

func (s *TagService) List(ctx context.Context, empresaID uuid.UUID) ([]*domain.Tag, error) {
	return s.tags.List(ctx, empresaID)
}

func (s *TagService) Create(ctx context.Context, empresaID uuid.UUID, in TagInput) (*domain.Tag, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	t := &domain.Tag{EmpresaID: empresaID, Name: in.Name, Color: in.Color}
	if t.Color == "" {
		t.Color = "#64748b"
	}
	if err := s.tags.Create(ctx, t); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrTagExists
		}
		return nil, err
	}
	return t, nil
}

func (s *TagService) Update(ctx context.Context, empresaID, id uuid.UUID, in TagInput) (*domain.Tag, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	t, err := s.tags.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperrors.ErrTagNotFound
	}
	t.Name = in.Name
	if in.Color != "" {
		t.Color = in.Color
	}
	if err := s.tags.Update(ctx, t); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrTagExists
		}
		return nil, err
	}
	return t, nil
}

func (s *TagService) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	t, err := s.tags.Get(ctx, empresaID, id)
	if err != nil {
		return err
	}
	if t == nil {
		return apperrors.ErrTagNotFound
	}
	return s.tags.Delete(ctx, empresaID, id)
}

// CatalogService manages the products and services an empresa offers
type CatalogService struct {
	items CatalogStore
}

func NewCatalogService(items CatalogStore) *CatalogService {
	return &CatalogService{items: items}
}

type CatalogInput struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Description *string         `json:"description"`
	SKU         *string         `json:"sku" validate:"omitempty,max=64"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency" validate:"omitempty,iso4217"`
	IsActive    *bool           `json:"is_active"`
}

func (in CatalogInput) check() error {
	if err := validateStruct(in); err != nil {
		return err
	}
	if in.Price.IsNegative() {
		return &apperrors.ValidationError{Field: "price", Message: "must not be negative"}
	}
	return nil
}

func (s *CatalogService) List(ctx context.Context, empresaID uuid.UUID, activeOnly bool) ([]*domain.CatalogItem, error) {
	return s.items.List(ctx, empresaID, activeOnly)
}

func (s *CatalogService) Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.CatalogItem, error) {
	c, err := s.items.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperrors.ErrCatalogItemNotFound
	}
	return c, nil
}

func (s *CatalogService) Create(ctx context.Context, empresaID uuid.UUID, in CatalogInput) (*domain.CatalogItem, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = strings.ToUpper(in.Currency)
	if err := in.check(); err != nil {
		return nil, err
	}
	c := &domain.CatalogItem{
		EmpresaID:   empresaID,
		Name:        in.Name,
		Description: in.Description,
		SKU:         in.SKU,
		Price:       in.Price.Round(2),
		Currency:    in.Currency,
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if c.Currency == "" {
		c.Currency = "PEN"
	}
	if err := s.items.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CatalogService) Update(ctx context.Context, empresaID, id uuid.UUID, in CatalogInput) (*domain.CatalogItem, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = strings.ToUpper(in.Currency)
	if err := in.check(); err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	c.Name, c.Description, c.SKU, c.Price = in.Name, in.Description, in.SKU, in.Price.Round(2)
	if in.Currency != "" {
		c.Currency = in.Currency
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if err := s.items.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CatalogService) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	if _, err := s.Get(ctx, empresaID, id); err != nil {
		return err
	}
	return s.items.Delete(ctx, empresaID, id)
}
