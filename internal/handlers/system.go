package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/api"
)

// SystemHandler implements the system-level endpoints of spec.md §6
// (network status) plus the admin-only supplemented operations of
// SPEC_FULL.md §12.
type SystemHandler struct {
	facade *api.Facade
	log    *logrus.Entry
}

// NewSystemHandler constructs a SystemHandler bound to facade.
func NewSystemHandler(facade *api.Facade, log *logrus.Entry) *SystemHandler {
	return &SystemHandler{facade: facade, log: log}
}

// NetworkStatus implements GET /api/v1/system/network-status.
func (h *SystemHandler) NetworkStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"networks": h.facade.NetworkStatus()})
}

// ForceExpirySweep implements POST /api/v1/admin/expiry-sweep, an
// admin-gated operation that runs the expiry sweep immediately rather
// than waiting for the scanner's next tick.
func (h *SystemHandler) ForceExpirySweep(c *gin.Context) {
	n := h.facade.ForceExpirySweep()
	h.log.WithField("count", n).Info("admin: forced expiry sweep")
	c.JSON(http.StatusOK, gin.H{"expired": n})
}
