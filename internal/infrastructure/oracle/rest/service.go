package restoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	announcementEndpoint = "/v1/announcement"
	attestationEndpoint  = "/v1/attestation"

	maxRetries = 3
)

type service struct {
	baseURL string
	client  *http.Client
}

func NewOracleClient(oracleURL string) (ports.OracleClient, error) {
	if len(oracleURL) == 0 {
		return nil, fmt.Errorf("oracle URL is required")
	}
	if _, err := url.Parse(oracleURL); err != nil {
		return nil, fmt.Errorf("invalid oracle URL: %w", err)
	}
	return &service{
		baseURL: oracleURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (s *service) GetAnnouncement(
	ctx context.Context, assetId string, maturityTime int64,
) (*domain.OracleAnnouncement, error) {
	endpoint, err := s.eventURL(announcementEndpoint, assetId, maturityTime)
	if err != nil {
		return nil, err
	}

	var announcement domain.OracleAnnouncement
	found, err := s.get(ctx, endpoint, &announcement)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no announcement for %s at %d", assetId, maturityTime)
	}
	return &announcement, nil
}

func (s *service) GetAttestation(
	ctx context.Context, assetId string, maturityTime int64,
) (*domain.OracleAttestation, error) {
	endpoint, err := s.eventURL(attestationEndpoint, assetId, maturityTime)
	if err != nil {
		return nil, err
	}

	var attestation domain.OracleAttestation
	found, err := s.get(ctx, endpoint, &attestation)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ports.ErrAttestationNotAvailable
	}
	return &attestation, nil
}

func (s *service) eventURL(endpoint, assetId string, maturityTime int64) (string, error) {
	return url.JoinPath(
		s.baseURL, endpoint, url.PathEscape(assetId),
		strconv.FormatInt(maturityTime, 10),
	)
}

// get decodes the JSON body of endpoint into out. Server errors are retried,
// a 404 is reported as not found.
func (s *service) get(ctx context.Context, endpoint string, out interface{}) (bool, error) {
	found := true
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			found = false
			return nil
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("oracle error %d: %s", resp.StatusCode, string(body))
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(
				fmt.Errorf("oracle error %d: %s", resp.StatusCode, string(body)),
			)
		}

		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode oracle response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx,
	)
	notify := func(err error, next time.Duration) {
		log.WithError(err).Debugf("oracle request failed, retrying in %s", next)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return false, err
	}
	return found, nil
}
