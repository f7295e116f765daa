package bulksync

import (
	"github.com/grailtrack/market-sync/internal/apperror"
	"github.com/grailtrack/market-sync/internal/provider"
)

type Mode string

const (
	// ModeAll refreshes entries whose mapping is older than the freshness cutoff.
	ModeAll Mode = "all"
	// ModeMissing restricts to entries lacking a provider mapping.
	ModeMissing Mode = "missing"
	// ModeForce ignores freshness entirely.
	ModeForce Mode = "force"
)

// PlatformBoth sweeps every registered provider.
const PlatformBoth = "both"

type RunRequest struct {
	Mode     Mode   `json:"mode"`
	Platform string `json:"platform"`
}

func (r RunRequest) Validate() *apperror.AppError {
	switch r.Mode {
	case ModeAll, ModeMissing, ModeForce:
	default:
		return apperror.New(apperror.BadRequest, "mode must be all, missing or force")
	}
	if r.Platform != PlatformBoth && !provider.Valid(provider.Provider(r.Platform)) {
		return apperror.New(apperror.BadRequest, "platform must be both or a known provider")
	}
	return nil
}
