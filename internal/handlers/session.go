package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/api"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/domain"
)

// SessionHandler implements the payment-session endpoints of spec.md §6.
type SessionHandler struct {
	facade *api.Facade
}

// NewSessionHandler constructs a SessionHandler bound to facade.
func NewSessionHandler(facade *api.Facade) *SessionHandler {
	return &SessionHandler{facade: facade}
}

type createSessionRequest struct {
	Amount            string            `json:"amount" binding:"required"`
	Currency          string            `json:"currency" binding:"required"`
	Network           string            `json:"network" binding:"required"`
	ExpirationMinutes int               `json:"expirationMinutes"`
	ClientRefID       string            `json:"clientRefId"`
	Metadata          map[string]string `json:"metadata"`
}

// Create implements POST /api/v1/payment-sessions.
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorEnvelope(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	expiration := req.ExpirationMinutes
	if expiration == 0 {
		expiration = 30
	}

	sess, err := h.facade.CreateSession(c.Request.Context(), domain.CreateSessionInput{
		Amount:            req.Amount,
		Currency:          req.Currency,
		Network:           req.Network,
		ExpirationMinutes: expiration,
		ClientRefID:       req.ClientRefID,
		Metadata:          req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

// Get implements GET /api/v1/payment-sessions/{id}.
func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.facade.GetSession(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// List implements GET /api/v1/payment-sessions.
func (h *SessionHandler) List(c *gin.Context) {
	filter := domain.SessionFilter{
		Status:      domain.SessionStatus(c.Query("status")),
		Network:     c.Query("network"),
		ClientRefID: c.Query("clientRefId"),
	}

	page := domain.Page{Page: 1, Limit: 10}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		page.Page = v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		page.Limit = v
	}

	sessions, pageResult := h.facade.ListSessions(filter, page)
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"pagination": gin.H{
			"page":       pageResult.Page,
			"limit":      pageResult.Limit,
			"total":      pageResult.Total,
			"totalPages": pageResult.TotalPages,
		},
	})
}

// Recreate implements POST /api/v1/payment-sessions/{id}/recreate.
func (h *SessionHandler) Recreate(c *gin.Context) {
	sess, err := h.facade.RecreateSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}
