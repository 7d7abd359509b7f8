package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/service"
	"github.com/vedran77/rentals/internal/transport/http/middleware"
)

type ApplicationHandler struct {
	applicationService *service.ApplicationService
	logger             *slog.Logger
}

func NewApplicationHandler(applicationService *service.ApplicationService, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{applicationService: applicationService, logger: logger}
}

type submitApplicationRequest struct {
	ListingID  string `json:"listing_id" validate:"required,safeid"`
	LandlordID string `json:"landlord_id" validate:"required,safeid"`
	MoveInDate string `json:"move_in_date"`
	CoverNote  string `json:"cover_note" validate:"max=2000"`
}

func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input submitApplicationRequest
	if !decodeBody(w, r, &input) {
		return
	}

	app, err := h.applicationService.SubmitApplication(r.Context(), service.SubmitApplicationInput{
		TenantID:   userID,
		LandlordID: input.LandlordID,
		ListingID:  input.ListingID,
		MoveInDate: input.MoveInDate,
		CoverNote:  input.CoverNote,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Could not submit application", err)
		return
	}

	writeJSON(w, http.StatusCreated, app)
}

func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var (
		apps []domain.Application
		err  error
	)
	switch role := r.URL.Query().Get("role"); role {
	case "", "tenant":
		apps, err = h.applicationService.ListTenantApplications(r.Context(), userID)
	case "landlord":
		apps, err = h.applicationService.ListLandlordApplications(r.Context(), userID)
	default:
		writeError(w, http.StatusBadRequest, "INVALID_ROLE", "Role must be tenant or landlord")
		return
	}
	if err != nil {
		writeServiceError(w, h.logger, "Could not list applications", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (h *ApplicationHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var op func(context.Context, string, string) (*domain.Application, error)
	switch r.PathValue("action") {
	case "withdraw":
		op = h.applicationService.WithdrawApplication
	case "accept":
		op = h.applicationService.AcceptApplication
	case "reject":
		op = h.applicationService.RejectApplication
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Unknown application action")
		return
	}

	app, err := op(r.Context(), r.PathValue("id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, "Could not update application", err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}
