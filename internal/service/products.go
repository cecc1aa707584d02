package service

import (
	"context"
	"strings"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	name := strings.TrimSpace(req.Name)
	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if name == "" || sku == "" {
		return domain.Product{}, validationError("name and sku are required")
	}
	if !req.Type.Valid() {
		return domain.Product{}, validationError("unknown product type %q", req.Type)
	}
	if req.PriceCents < 0 || req.RentalDepositCents < 0 || req.ReorderThreshold < 0 {
		return domain.Product{}, validationError("price, deposit and threshold must not be negative")
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:                 xid.New("prd"),
		Name:               name,
		SKU:                sku,
		Type:               req.Type,
		PriceCents:         req.PriceCents,
		RentalDepositCents: req.RentalDepositCents,
		ReorderThreshold:   req.ReorderThreshold,
		CreatedAt:          s.now(),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logActivity(ctx, ActionProductCreated, "product", created.ID, map[string]any{
		"sku":  created.SKU,
		"type": created.Type,
	})
	return *created, nil
}

// ArchiveProduct hides a product from the catalogue. Its batches and history stay.
func (s *Service) ArchiveProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.ArchiveProduct(ctx, id); err != nil {
		return err
	}
	s.logActivity(ctx, ActionProductArchived, "product", id, nil)
	return nil
}
