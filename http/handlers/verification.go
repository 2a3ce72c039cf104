package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"studio-booking/errors"
	"studio-booking/http/response"
	"studio-booking/logger"
	"studio-booking/models"
	"studio-booking/services"
	"studio-booking/utils"
)

// Ledger is the verification ledger as seen by the HTTP layer.
type Ledger interface {
	Create(ctx context.Context, req services.CreateVerificationRequest) (*models.PaymentVerification, error)
	Get(ctx context.Context, id string) (*models.PaymentVerification, error)
	List(ctx context.Context) ([]*models.PaymentVerification, error)
	Now() time.Time
	Expiry() time.Duration
}

// Reconciler runs one fetch-and-match cycle on demand.
type Reconciler interface {
	Tick(ctx context.Context) (services.PassResult, error)
}

type VerificationHandler struct {
	ledger     Ledger
	reconciler Reconciler
	log        *logger.Logger
}

func NewVerificationHandler(ledger Ledger, reconciler Reconciler, log *logger.Logger) *VerificationHandler {
	return &VerificationHandler{ledger: ledger, reconciler: reconciler, log: logger.OrDefault(log)}
}

// CreateVerification records a new out-of-band payment claim
// POST /api/verifications
func (h *VerificationHandler) CreateVerification(c echo.Context) error {
	var req services.CreateVerificationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "Invalid request")
	}

	if err := utils.ValidateVerificationRequest(req.StudentName, req.StudentEmail, req.Amount); err != nil {
		return response.Error(c, http.StatusBadRequest, err.Error())
	}
	v, err := h.ledger.Create(c.Request().Context(), req)
	if err != nil {
		if !errors.IsKind(err, errors.Invalid) {
			h.log.Error("Error creating verification: %v", err)
		}
		return response.FromError(c, err)
	}

	return response.Success(c, http.StatusCreated, "Payment instructions sent", v.ToResponse(h.ledger.Now(), h.ledger.Expiry()))
}

// GetVerification returns a single claim
// GET /api/verifications/:id
func (h *VerificationHandler) GetVerification(c echo.Context) error {
	v, err := h.ledger.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if !errors.IsKind(err, errors.NotFound) {
			h.log.Error("Error fetching verification: %v", err)
		}
		return response.FromError(c, err)
	}
	return response.Success(c, http.StatusOK, "", v.ToResponse(h.ledger.Now(), h.ledger.Expiry()))
}

// ListVerifications returns claims newest first
// GET /api/verifications?status=pending&created_after=...&created_before=...
func (h *VerificationHandler) ListVerifications(c echo.Context) error {
	filters, err := utils.ParseTimeFilters(c.Request())
	if err != nil {
		return response.Error(c, http.StatusBadRequest, err.Error())
	}

	status := models.VerificationStatus(c.QueryParam("status"))
	switch status {
	case "", models.StatusPending, models.StatusVerified, models.StatusExpired:
	default:
		return response.Error(c, http.StatusBadRequest, fmt.Sprintf("invalid status %q", status))
	}

	all, err := h.ledger.List(c.Request().Context())
	if err != nil {
		h.log.Error("Error listing verifications: %v", err)
		return response.FromError(c, err)
	}

	now, window := h.ledger.Now(), h.ledger.Expiry()
	out := make([]models.VerificationResponse, 0, len(all))
	for _, v := range all {
		if !filters.Contains(v.CreatedAt) {
			continue
		}
		if status != "" && v.EffectiveStatus(now, window) != status {
			continue
		}
		out = append(out, v.ToResponse(now, window))
	}

	return response.Success(c, http.StatusOK, "", map[string]interface{}{
		"count":         len(out),
		"verifications": out,
	})
}

// ExportVerifications downloads the ledger as a spreadsheet
// GET /api/verifications/export
func (h *VerificationHandler) ExportVerifications(c echo.Context) error {
	all, err := h.ledger.List(c.Request().Context())
	if err != nil {
		h.log.Error("Error listing verifications for export: %v", err)
		return response.FromError(c, err)
	}

	var buf bytes.Buffer
	if err := services.ExportVerifications(&buf, all, h.ledger.Now(), h.ledger.Expiry()); err != nil {
		h.log.Error("Error exporting verifications: %v", err)
		return response.Error(c, http.StatusInternalServerError, "Failed to export verifications")
	}

	filename := fmt.Sprintf("verifications_%s.xlsx", h.ledger.Now().Format("20060102_150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// Reconcile runs a matching pass against the configured feed right away
// POST /api/verifications/reconcile
func (h *VerificationHandler) Reconcile(c echo.Context) error {
	result, err := h.reconciler.Tick(c.Request().Context())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, http.StatusOK, fmt.Sprintf("%d payment(s) verified", len(result.Matches)), result)
}
