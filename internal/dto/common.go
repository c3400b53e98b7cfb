package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Additional-Code/loom/internal/entity"
)

// DateLayout is the calendar-date wire format.
const DateLayout = "2006-01-02"

// Date is a calendar date accepted as "2006-01-02" or an RFC 3339 timestamp.
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	for _, layout := range []string{DateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
}

// Ptr returns the date as *time.Time, nil for a nil or zero Date.
func (d *Date) Ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

// StatusChangeRequest is the body of POST /<entity>/:id/status.
type StatusChangeRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// HistoryResponse is one audit row.
type HistoryResponse struct {
	ID             string    `json:"id"`
	PreviousStatus *string   `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	ChangedBy      string    `json:"changedBy"`
	ChangeReason   *string   `json:"changeReason"`
	ChangedAt      time.Time `json:"changedAt"`
}

// CustomerRef is the embedded customer of an order or sample.
type CustomerRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// History maps audit rows, preserving order.
func History(rows []*entity.StatusHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(rows))
	for _, h := range rows {
		out = append(out, HistoryResponse{
			ID:             h.ID,
			PreviousStatus: h.PreviousStatus,
			NewStatus:      h.NewStatus,
			ChangedBy:      h.ChangedBy,
			ChangeReason:   h.ChangeReason,
			ChangedAt:      h.ChangedAt,
		})
	}
	return out
}

func customerRef(c *entity.Customer) *CustomerRef {
	if c == nil {
		return nil
	}
	return &CustomerRef{ID: c.ID, Name: c.Name, Email: c.Email}
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}
