package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeWebhook confirms a pending appointment once its checkout session is paid.
// Signature verification is the only authentication on this route.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.stripeWebhookSecret) == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "not_configured", "stripe webhook not configured")
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_signature", "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.stripeWebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                h.stripeWebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)

	if evtType != "checkout.session.completed" || evt.Data == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		h.logger.Error("stripe: invalid checkout session payload", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid checkout session payload")
		return
	}
	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}
	appointmentID := strings.TrimSpace(session.Metadata["appointment_id"])
	if appointmentID == "" {
		h.logger.Warn("stripe: checkout session without appointment_id metadata", "session_id", session.ID)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	// Replays and late events for cancelled or missing appointments are acknowledged so
	// Stripe stops retrying them.
	_, err = h.ledger.Confirm(r.Context(), appointmentID, model.System("stripe"))
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "confirmed", "appointment_id": appointmentID})
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, ledger.ErrNotFound):
		h.logger.Info("stripe: confirmation skipped", "appointment_id", appointmentID, "provider_event_id", evt.ID, "err", err)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
	default:
		h.writeErr(w, r, err)
	}
}
