package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/middleware"
	"github.com/busline/ticketing-backend/internal/services"
)

// TicketHandler serves the printable artifacts of a confirmed booking:
// the gate QR code and the boarding pass PDF.
type TicketHandler struct {
	ticketService *services.TicketService
	logger        *logrus.Logger
}

func NewTicketHandler(ticketService *services.TicketService, logger *logrus.Logger) *TicketHandler {
	return &TicketHandler{ticketService: ticketService, logger: logger}
}

// QRCode streams the booking's gate QR code as a PNG download.
// GET /api/v1/bookings/:id/ticket/qr
func (h *TicketHandler) QRCode(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	png, filename, err := h.ticketService.QRCode(userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "image/png", png)
}

// BoardingPass streams the booking's boarding pass as a PDF download.
// GET /api/v1/bookings/:id/ticket/boarding-pass
func (h *TicketHandler) BoardingPass(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	pdf, filename, err := h.ticketService.BoardingPass(userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
