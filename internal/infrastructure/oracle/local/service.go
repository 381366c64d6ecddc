package localoracle

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type service struct {
	oracle *Oracle
}

// NewService exposes an in-process oracle as an oracle client.
func NewService(oracle *Oracle) ports.OracleClient {
	return &service{oracle}
}

func (s *service) GetAnnouncement(
	_ context.Context, assetId string, maturityTime int64,
) (*domain.OracleAnnouncement, error) {
	return s.oracle.Announce(assetId, maturityTime)
}

func (s *service) GetAttestation(
	_ context.Context, assetId string, maturityTime int64,
) (*domain.OracleAttestation, error) {
	att, ok := s.oracle.Attestation(assetId, maturityTime)
	if !ok {
		return nil, ports.ErrAttestationNotAvailable
	}
	return att, nil
}

type attestRequest struct {
	Outcome string  `json:"outcome"`
	Value   *uint64 `json:"value,omitempty"`
}

// NewHandler serves announcements and attestations over HTTP with the
// routes expected by the rest oracle client.
func NewHandler(oracle *Oracle) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/v1/announcement/:asset/:maturity", func(c *gin.Context) {
		maturity, err := strconv.ParseInt(c.Param("maturity"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid maturity"})
			return
		}
		announcement, err := oracle.Announce(c.Param("asset"), maturity)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, announcement)
	})

	router.GET("/v1/attestation/:asset/:maturity", func(c *gin.Context) {
		maturity, err := strconv.ParseInt(c.Param("maturity"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid maturity"})
			return
		}
		att, ok := oracle.Attestation(c.Param("asset"), maturity)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "attestation not available"})
			return
		}
		c.JSON(http.StatusOK, att)
	})

	router.POST("/v1/attestation/:asset/:maturity", func(c *gin.Context) {
		maturity, err := strconv.ParseInt(c.Param("maturity"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid maturity"})
			return
		}
		var req attestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		asset := c.Param("asset")
		var att *domain.OracleAttestation
		if req.Value != nil {
			att, err = oracle.AttestValue(asset, maturity, *req.Value)
		} else {
			att, err = oracle.Attest(asset, maturity, req.Outcome)
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.WithField("asset", asset).Infof("attested event at %d", maturity)
		c.JSON(http.StatusOK, att)
	})

	return router
}
