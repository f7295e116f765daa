package syncjob

import (
	"strings"
	"time"

	"github.com/grailtrack/market-sync/internal/apperror"
	"github.com/grailtrack/market-sync/internal/provider"
)

type EnqueueRequest struct {
	Provider   provider.Provider `json:"provider"`
	ProductKey string            `json:"productKey"`
	Size       string            `json:"size,omitempty"`
	Priority   int               `json:"priority,omitempty"`
	NotBefore  *time.Time        `json:"notBefore,omitempty"`
}

func (r EnqueueRequest) Validate() *apperror.AppError {
	if !provider.Valid(r.Provider) {
		return apperror.New(apperror.BadRequest, "unknown provider")
	}
	if len(r.ProductKey) < 2 {
		return apperror.New(apperror.BadRequest, "product key must be at least 2 characters")
	}
	if r.Priority < 0 {
		return apperror.New(apperror.BadRequest, "priority must be non-negative")
	}
	return nil
}

func (r EnqueueRequest) job() *Job {
	priority := r.Priority
	if priority == 0 {
		priority = PriorityBackground
	}
	// Product keys are stored upper case so dedupe keys and read-path
	// lookups agree regardless of request casing.
	key := strings.ToUpper(r.ProductKey)
	return &Job{
		Provider:   r.Provider,
		ProductKey: key,
		Size:       r.Size,
		DedupeKey:  DedupeKey(r.Provider, key, r.Size),
		Priority:   priority,
		Status:     StatusPending,
		NotBefore:  r.NotBefore,
	}
}

type RetryRequest struct {
	Provider     provider.Provider `json:"provider"`
	MaxCount     int               `json:"maxCount,omitempty"`
	SinceMinutes int               `json:"sinceMinutes,omitempty"`
}

func (r RetryRequest) Validate() *apperror.AppError {
	if !provider.Valid(r.Provider) {
		return apperror.New(apperror.BadRequest, "unknown provider")
	}
	if r.MaxCount < 0 || r.SinceMinutes < 0 {
		return apperror.New(apperror.BadRequest, "maxCount and sinceMinutes must be non-negative")
	}
	return nil
}

type GetJobRequest struct {
	ID int64
}

func (r GetJobRequest) Validate() *apperror.AppError {
	if r.ID <= 0 {
		return apperror.New(apperror.BadRequest, "invalid job id")
	}
	return nil
}

type ListJobsRequest struct {
	Provider   provider.Provider
	ProductKey string
	Status     Status
}

func (r ListJobsRequest) Validate() *apperror.AppError {
	if r.Provider != "" && !provider.Valid(r.Provider) {
		return apperror.New(apperror.BadRequest, "unknown provider")
	}
	switch r.Status {
	case "", StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return nil
	default:
		return apperror.New(apperror.BadRequest, "unknown status")
	}
}
