// Package notify opens NinjaRMM tickets when a printer degrades. Ticketing
// is best-effort: a failure here is logged and never blocks a poll.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Oberon01/tonertrack-v2/config"
	"github.com/Oberon01/tonertrack-v2/logger"
	"github.com/Oberon01/tonertrack-v2/store"
)

const requestTimeout = 15 * time.Second

// NinjaClient creates tickets through the NinjaRMM ticketing API.
type NinjaClient struct {
	baseURL string
	token   string
	cfg     config.NinjaConfig
	httpc   *http.Client
	log     *logger.Logger
}

// NewNinjaClient builds a client from configuration. It returns nil when
// ticketing is disabled or no token is available; callers treat a nil
// client as "notifications off".
func NewNinjaClient(cfg config.NinjaConfig, token string, log *logger.Logger) *NinjaClient {
	if !cfg.Enabled || token == "" {
		return nil
	}
	return &NinjaClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   token,
		cfg:     cfg,
		httpc:   &http.Client{Timeout: requestTimeout},
		log:     log,
	}
}

// TicketRequest is the caller-facing shape of a new ticket.
type TicketRequest struct {
	Subject string
	Body    string
}

// TicketResponse carries the fields of interest from a created ticket.
type TicketResponse struct {
	ID int `json:"id"`
}

// ticketPayload mirrors the NinjaRMM ticketing endpoint's request body.
type ticketPayload struct {
	ClientID     int               `json:"clientId"`
	TicketFormID int               `json:"ticketFormId"`
	LocationID   int               `json:"locationId"`
	NodeID       int               `json:"nodeId"`
	Subject      string            `json:"subject"`
	Description  ticketDescription `json:"description"`
	Status       string            `json:"status"`
	Type         string            `json:"type"`
	Severity     string            `json:"severity"`
	Priority     string            `json:"priority"`
}

type ticketDescription struct {
	Public   bool   `json:"public"`
	Body     string `json:"body"`
	HTMLBody string `json:"htmlBody"`
}

// CreateTicket opens a ticket and returns its identifier.
func (c *NinjaClient) CreateTicket(ctx context.Context, req TicketRequest) (TicketResponse, error) {
	payload := ticketPayload{
		ClientID:     c.cfg.ClientID,
		TicketFormID: c.cfg.TicketFormID,
		LocationID:   c.cfg.LocationID,
		NodeID:       c.cfg.NodeID,
		Subject:      req.Subject,
		Description: ticketDescription{
			Public:   true,
			Body:     req.Body,
			HTMLBody: "<p>" + req.Body + "</p>",
		},
		Status:   "1000", // Open
		Type:     "PROBLEM",
		Severity: "NONE",
		Priority: "NONE",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return TicketResponse{}, fmt.Errorf("encode ticket: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ticketing/ticket", bytes.NewReader(body))
	if err != nil {
		return TicketResponse{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return TicketResponse{}, fmt.Errorf("ninja request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return TicketResponse{}, fmt.Errorf("ninja API error %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out TicketResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TicketResponse{}, fmt.Errorf("decode ticket response: %w", err)
	}
	return out, nil
}

// StatusChangeHook adapts the client to the coordinator's OnStatusChange
// callback: a transition into Error opens a ticket describing the problem.
// The HTTP call runs on its own goroutine so the poll path never waits on
// the ticketing API.
func (c *NinjaClient) StatusChangeHook() func(rec *store.PrinterRecord, previous store.Status) {
	return func(rec *store.PrinterRecord, previous store.Status) {
		if c == nil || rec.Status != store.StatusError || previous == store.StatusError {
			return
		}
		req := TicketRequest{
			Subject: fmt.Sprintf("Printer problem: %s (%s)", rec.DisplayName, rec.Address),
			Body:    describeProblem(rec),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			resp, err := c.CreateTicket(ctx, req)
			if err != nil {
				if c.log != nil {
					c.log.Warn("Ticket creation failed", "address", rec.Address, "error", err)
				}
				return
			}
			if c.log != nil {
				c.log.Info("Opened ticket", "address", rec.Address, "ticket", resp.ID)
			}
		}()
	}
}

// describeProblem summarizes why the record is in Error.
func describeProblem(rec *store.PrinterRecord) string {
	var parts []string
	for name, sev := range rec.ActiveAlerts {
		if sev == store.SeverityCritical {
			parts = append(parts, "critical alert: "+name)
		}
	}
	for _, c := range rec.Consumables {
		if c.Numeric() && c.Percent < 10 {
			parts = append(parts, fmt.Sprintf("%s at %d%%", c.Name, c.Percent))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "device reported an error condition")
	}
	return fmt.Sprintf("%s (%s, serial %s): %s.",
		rec.DisplayName, rec.Model, rec.Serial, strings.Join(parts, "; "))
}
