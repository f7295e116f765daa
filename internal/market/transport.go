package market

import (
	"time"

	"github.com/grailtrack/market-sync/internal/apperror"
	"github.com/grailtrack/market-sync/internal/provider"
)

type UnifiedRequest struct {
	ProductKey  string
	Region      string // "", "US", "EU", "GB", "JP"
	Consignment bool   // include consignment-sourced quotes
}

func (r UnifiedRequest) Validate() *apperror.AppError {
	if len(r.ProductKey) < 2 {
		return apperror.New(apperror.BadRequest, "product key must be at least 2 characters")
	}
	if _, ok := regionCurrency[r.Region]; !ok {
		return apperror.New(apperror.BadRequest, "region must be one of US, EU, GB, JP")
	}
	return nil
}

type HistoryRequest struct {
	Provider   provider.Provider
	ProductKey string
	Size       string
	From       time.Time
	To         time.Time
	Limit      int
}

func (r HistoryRequest) Validate() *apperror.AppError {
	if !provider.Valid(r.Provider) {
		return apperror.New(apperror.BadRequest, "unknown provider")
	}
	if len(r.ProductKey) < 2 {
		return apperror.New(apperror.BadRequest, "product key must be at least 2 characters")
	}
	if !r.To.IsZero() && !r.From.IsZero() && r.To.Before(r.From) {
		return apperror.New(apperror.BadRequest, "to must be after from")
	}
	return nil
}
