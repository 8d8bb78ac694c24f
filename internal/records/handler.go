package records

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medledger/medledger/internal/ledger"
	"github.com/medledger/medledger/internal/platform/auth"
	"github.com/medledger/medledger/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	provider := g.Group("", auth.RequireRole("provider", "patient"))
	provider.POST("/medical/record", h.CreateRecord)
	provider.GET("/medical/records/:patient_id", h.GetPatientRecords)
	provider.POST("/medical/consent", h.ManageConsent)
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var in CreateRecordInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// The authenticated subject is the authoring provider.
	in.ProviderID = auth.UserIDFromContext(c.Request().Context())

	id, err := h.svc.CreateRecord(c.Request().Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRecordType), errors.Is(err, ledger.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":        "medical record accepted for the next block",
		"transaction_id": id,
		"record_type":    in.RecordType,
		"patient_id":     in.PatientID,
		"provider_id":    in.ProviderID,
	})
}

func (h *Handler) GetPatientRecords(c echo.Context) error {
	patientID := c.Param("patient_id")
	requesterID := auth.UserIDFromContext(c.Request().Context())
	recordType := c.QueryParam("record_type")

	recs, err := h.svc.PatientRecords(c.Request().Context(), patientID, requesterID, recordType)
	if err != nil {
		if errors.Is(err, ErrInvalidRecordType) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	p := pagination.FromContext(c)
	total := len(recs)
	start, end := p.Slice(total)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id": patientID,
		"records":    recs[start:end],
		"count":      total,
		"limit":      p.Limit,
		"offset":     p.Offset,
	})
}

func (h *Handler) ManageConsent(c echo.Context) error {
	var in ConsentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// Only the patient manages consent for their own records.
	requesterID := auth.UserIDFromContext(c.Request().Context())
	if requesterID != in.PatientID {
		return echo.NewHTTPError(http.StatusForbidden,
			"only patients can manage consent for their own records")
	}

	id, err := h.svc.Consent(c.Request().Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidConsent), errors.Is(err, ledger.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":        "consent record accepted for the next block",
		"transaction_id": id,
		"patient_id":     in.PatientID,
		"provider_id":    in.ProviderID,
		"access_type":    in.Action,
	})
}
