package restservice

import (
	"errors"
	"net/http"

	"github.com/dlc-network/dlcd/internal/core/application"
	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// contractEvents is the subscription side of the contract notifier.
type contractEvents interface {
	Subscribe(contractIds ...string) (string, <-chan domain.Contract)
	Unsubscribe(id string) error
}

type handler struct {
	svc    application.Service
	events contractEvents
}

func newRouter(svc application.Service, events contractEvents) *gin.Engine {
	h := &handler{svc, events}

	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/v1")
	v1.POST("/contracts", h.offerContract)
	v1.GET("/contracts", h.listContracts)
	v1.GET("/contracts/:id", h.getContract)
	v1.POST("/contracts/:id/accept", h.acceptContract)
	v1.POST("/contracts/:id/reject", h.rejectContract)
	v1.GET("/events", h.streamEvents)

	return router
}

func (h *handler) offerContract(c *gin.Context) {
	var terms domain.ContractTerms
	if err := c.ShouldBindJSON(&terms); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := terms.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contract, err := h.svc.SendContractOffer(c.Request.Context(), terms)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContractView(contract))
}

func (h *handler) acceptContract(c *gin.Context) {
	contract, err := h.svc.AcceptContractOffer(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContractView(contract))
}

func (h *handler) rejectContract(c *gin.Context) {
	contract, err := h.svc.RejectContractOffer(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContractView(contract))
}

func (h *handler) getContract(c *gin.Context) {
	contract, err := h.svc.GetContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContractView(contract))
}

// listContracts accepts repeated state params and a counterparty param.
func (h *handler) listContracts(c *gin.Context) {
	filter := domain.ContractFilter{
		CounterPartyName: c.Query("counterparty"),
	}
	for _, name := range c.QueryArray("state") {
		state, err := domain.ParseContractState(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.States = append(filter.States, state)
	}

	contracts, err := h.svc.ListContracts(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": toContractViews(contracts)})
}

// streamEvents pushes every contract update as a server-sent event until the
// client goes away. Repeated contract params restrict the stream.
func (h *handler) streamEvents(c *gin.Context) {
	id, ch := h.events.Subscribe(c.QueryArray("contract")...)
	defer func() {
		if err := h.events.Unsubscribe(id); err != nil {
			log.WithError(err).Warn("failed to unsubscribe from contract events")
		}
	}()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case contract, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent("contract", toContractView(contract))
			c.Writer.Flush()
		}
	}
}

func writeError(c *gin.Context, err error) {
	var (
		protocolErr *application.ProtocolError
		commandErr  *application.CommandError
	)
	switch {
	case errors.Is(err, domain.ErrContractNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ports.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &protocolErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &commandErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error": err.Error(),
			"state": commandErr.State.String(),
		})
	default:
		log.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
