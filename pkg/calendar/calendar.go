// Package calendar is a thin HTTP client for the broker scheduling service.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	URL     string        `split_words:"true" required:"true"`
	Token   string        `split_words:"true" required:"true"`
	Timeout time.Duration `split_words:"true" default:"10s"`
}

// Slot is one bookable visit window offered by a broker.
type Slot struct {
	ID       string    `json:"id"`
	BrokerID string    `json:"broker_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Appointment is a confirmed booking for a lead.
type Appointment struct {
	ID       string    `json:"id"`
	SlotID   string    `json:"slot_id"`
	LeadID   string    `json:"lead_id"`
	BrokerID string    `json:"broker_id"`
	Start    time.Time `json:"start"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("calendar url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Availability lists the broker's open slots.
func (c *Client) Availability(ctx context.Context, brokerID string) ([]Slot, error) {
	endpoint := fmt.Sprintf("%s/v1/brokers/%s/slots", c.baseURL, url.PathEscape(brokerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus(resp)
	}

	var out struct {
		Slots []Slot `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("calendar: decode slots: %w", err)
	}
	return out.Slots, nil
}

// Book reserves a slot for a lead.
func (c *Client) Book(ctx context.Context, slotID, leadID string) (Appointment, error) {
	endpoint := fmt.Sprintf("%s/v1/appointments", c.baseURL)

	body, err := json.Marshal(map[string]string{
		"slot_id": slotID,
		"lead_id": leadID,
	})
	if err != nil {
		return Appointment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Appointment{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Appointment{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Appointment{}, unexpectedStatus(resp)
	}

	var appt Appointment
	if err := json.NewDecoder(resp.Body).Decode(&appt); err != nil {
		return Appointment{}, fmt.Errorf("calendar: decode appointment: %w", err)
	}
	return appt, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func unexpectedStatus(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("calendar: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
