package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/stripe/stripe-go/v79/webhook"
)

// stripe-webhook-sim posts a signed Stripe event to the clinic service so the payment
// confirmation path can be exercised without a Stripe account.
func main() {
	var (
		baseURL       = flag.String("base-url", config.String("BASE_URL", "http://localhost:8080"), "clinic service base url")
		evtType       = flag.String("type", config.String("STRIPE_EVENT_TYPE", "checkout.session.completed"), "stripe event type")
		appointmentID = flag.String("appointment-id", config.String("APPOINTMENT_ID", ""), "appointment_id metadata")
		paymentStatus = flag.String("payment-status", "paid", "checkout session payment_status")
		secret        = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*appointmentID) == "" {
		fatal("APPOINTMENT_ID is required")
	}

	now := time.Now().UTC()
	payload, err := buildEventJSON(fmt.Sprintf("evt_test_%d", now.UnixNano()), *evtType, now, *appointmentID, *paymentStatus)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/payments/stripe/webhook", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID, eventType string, t time.Time, appointmentID, paymentStatus string) ([]byte, error) {
	switch eventType {
	case "checkout.session.completed", "checkout.session.expired":
		return json.Marshal(map[string]any{
			"id":          eventID,
			"object":      "event",
			"created":     t.Unix(),
			"type":        eventType,
			"api_version": "2020-08-27",
			"data": map[string]any{
				"object": map[string]any{
					"id":             "cs_test_" + appointmentID,
					"object":         "checkout.session",
					"payment_status": paymentStatus,
					"metadata": map[string]any{
						"appointment_id": appointmentID,
					},
				},
			},
		})
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
