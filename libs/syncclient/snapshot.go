// Package syncclient implements the polling side of the booking sync
// contract: fetch a snapshot on a fixed interval, reconcile it into a local
// view by id, and let the authoritative server state win.
package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Appointment struct {
	ID          string    `json:"id"`
	ProviderID  string    `json:"providerId"`
	RequesterID string    `json:"requesterId"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Reason      string    `json:"reason"`
	Status      string    `json:"status"`
	Version     int       `json:"version"`
	CancelledBy string    `json:"cancelledBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	Type        string    `json:"type"`
	RelatedID   string    `json:"relatedId"`
	Message     string    `json:"message"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Snapshot struct {
	ServerTime     time.Time      `json:"serverTime"`
	PollIntervalMs int64          `json:"pollIntervalMs"`
	Appointments   []Appointment  `json:"appointments"`
	Notifications  []Notification `json:"notifications"`
	UnreadCount    int            `json:"unreadCount"`
}

type Fetcher interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// HTTPFetcher reads GET {BaseURL}/api/v1/sync with a bearer token.
type HTTPFetcher struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(f.BaseURL, "/")+"/api/v1/sync", nil)
	if err != nil {
		return Snapshot{}, err
	}
	req.Header.Set("Accept", "application/json")
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, fmt.Errorf("sync: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("sync: decode: %w", err)
	}
	return snap, nil
}
