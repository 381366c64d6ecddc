package ports

import (
	"context"
	"errors"

	"github.com/dlc-network/dlcd/internal/core/domain"
)

var ErrAttestationNotAvailable = errors.New("attestation not available yet")

type OracleClient interface {
	GetAnnouncement(
		ctx context.Context, assetId string, maturityTime int64,
	) (*domain.OracleAnnouncement, error)
	GetAttestation(
		ctx context.Context, assetId string, maturityTime int64,
	) (*domain.OracleAttestation, error)
}
