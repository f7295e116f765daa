package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/grailtrack/market-sync/internal/apperror"
	"github.com/grailtrack/market-sync/internal/provider"
	"github.com/grailtrack/market-sync/internal/syncjob"
)

type Service struct {
	repo      Repository
	enqueuer  *syncjob.Service
	providers []provider.Provider
}

func NewService(repo Repository, enqueuer *syncjob.Service, providers []provider.Provider) *Service {
	return &Service{repo: repo, enqueuer: enqueuer, providers: providers}
}

type CreateItemRequest struct {
	SKU      string `json:"sku"`
	Brand    string `json:"brand,omitempty"`
	Model    string `json:"model,omitempty"`
	Size     string `json:"size,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

func (r CreateItemRequest) Validate() *apperror.AppError {
	if len(r.SKU) < 2 {
		return apperror.New(apperror.BadRequest, "sku must be at least 2 characters")
	}
	return nil
}

// AddItem creates the item and schedules a hot-priority refresh per provider
// so newly tracked holdings get prices ahead of background churn. Enqueue
// failures do not fail the add; the next sweep covers the gap.
func (s *Service) AddItem(ctx context.Context, req CreateItemRequest) (*Item, error) {
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}

	// SKU doubles as the productKey for jobs and observations; store it
	// upper case so every later lookup hits the same key.
	it := &Item{
		SKU:      strings.ToUpper(req.SKU),
		Brand:    req.Brand,
		Model:    req.Model,
		Size:     req.Size,
		Nickname: req.Nickname,
	}
	if err := s.repo.Create(ctx, it); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	for _, p := range s.providers {
		_, err := s.enqueuer.Enqueue(ctx, syncjob.EnqueueRequest{
			Provider:   p,
			ProductKey: it.SKU,
			Size:       it.Size,
			Priority:   syncjob.PriorityHot,
		})
		if err != nil {
			slog.Error("enqueue hot refresh", "item", it.ID, "provider", p, "error", err)
		}
	}

	return it, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Item, error) {
	if id <= 0 {
		return nil, apperror.New(apperror.BadRequest, "invalid item id")
	}
	it, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, apperror.New(apperror.NotFound, "item not found")
	}
	return it, nil
}

func (s *Service) List(ctx context.Context) ([]Item, error) {
	return s.repo.List(ctx)
}
