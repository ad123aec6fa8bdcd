package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/api"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/domain"
)

// TransferHandler implements the observed-transfer read endpoints of
// spec.md §6.
type TransferHandler struct {
	facade *api.Facade
}

// NewTransferHandler constructs a TransferHandler bound to facade.
func NewTransferHandler(facade *api.Facade) *TransferHandler {
	return &TransferHandler{facade: facade}
}

// Get implements GET /api/v1/transactions/{id}.
func (h *TransferHandler) Get(c *gin.Context) {
	t, err := h.facade.GetTransfer(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// List implements GET /api/v1/transactions.
func (h *TransferHandler) List(c *gin.Context) {
	filter := domain.TransferFilter{
		Network:   c.Query("network"),
		SessionID: c.Query("sessionId"),
		Status:    domain.TransferStatus(c.Query("status")),
	}
	transfers := h.facade.ListTransfers(filter)
	c.JSON(http.StatusOK, gin.H{"transfers": transfers})
}
