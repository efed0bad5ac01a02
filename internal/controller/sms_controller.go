// internal/controller/sms_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/syagroup/bulksms-backend/internal/errors"
	"github.com/syagroup/bulksms-backend/internal/service"
)

type SMSController struct {
	CampaignService *service.CampaignService
}

// Routes mounts the campaign endpoints behind the tenant middleware.
func (c *SMSController) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireTenant)
	r.Post("/send", c.Send)
	r.Post("/stop", c.Stop)
	r.Get("/progress", c.Progress)
	r.Get("/last_message", c.LastMessage)
	return r
}

// Send starts (or continues) a campaign for the calling tenant. The send
// itself is asynchronous: 202 only acknowledges that batches were scheduled.
func (c *SMSController) Send(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := TenantFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := c.CampaignService.Start(tenantID, body.Message); err != nil {
		switch {
		case errors.Is(err, appErrors.ErrEmptyMessage):
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Please provide a message"})
		case appErrors.IsTenantNotFound(err):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "SMS sending started",
	})
}

// Stop halts future batches. An in-flight batch completes normally.
func (c *SMSController) Stop(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := TenantFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}

	if err := c.CampaignService.Stop(tenantID); err != nil {
		if appErrors.IsTenantNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "SMS sending stopped"})
}

// Progress returns the ephemeral counters of the last completed batch.
func (c *SMSController) Progress(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := TenantFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, c.CampaignService.GetProgress(tenantID))
}

// LastMessage returns the stored campaign text.
func (c *SMSController) LastMessage(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := TenantFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}

	message, err := c.CampaignService.LastMessage(tenantID)
	if err != nil {
		if appErrors.IsTenantNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
