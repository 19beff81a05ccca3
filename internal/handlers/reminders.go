package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docremind/internal/mailer"
	"docremind/internal/services"
)

type testEmailRequest struct {
	Email string `json:"email" binding:"required"`
}

func parseAccountID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return 0, false
	}
	return uint(id), true
}

// SendTestReminder sends the account's reminder email to the given address.
func (h *Handler) SendTestReminder(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req testEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	if err := h.reminders.SendTest(c.Request.Context(), accountID, req.Email); err != nil {
		h.respondSendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Test reminder email has been sent."})
}

// SendTestSMTP sends a test message through the account's SMTP settings.
func (h *Handler) SendTestSMTP(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req testEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	account, err := h.accounts.FindAccount(c.Request.Context(), accountID)
	if err != nil {
		h.respondSendError(c, err)
		return
	}

	if err := h.smtp.SendSMTPTest(c.Request.Context(), *account, req.Email); err != nil {
		h.respondSendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "SMTP settings test email has been sent."})
}

func (h *Handler) respondSendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrAccountNotFound):
		h.handleError(c, http.StatusNotFound, "account not found", err)
	case errors.Is(err, mailer.ErrInvalidRecipient):
		h.handleError(c, http.StatusUnprocessableEntity, "invalid email address", err)
	case errors.Is(err, services.ErrTemplateNotFound):
		h.handleError(c, http.StatusUnprocessableEntity, "account has no active template", err)
	case errors.Is(err, services.ErrSMTPNotConfigured):
		h.handleError(c, http.StatusUnprocessableEntity, "smtp settings are not configured", err)
	case errors.Is(err, mailer.ErrNoTransport):
		h.handleError(c, http.StatusServiceUnavailable, "no mail transport configured", err)
	default:
		h.handleError(c, http.StatusBadGateway, "failed to send test email", err)
	}
}
