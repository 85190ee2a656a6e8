// Package domain holds service bookings and the admin listing filter.
package domain

import (
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusNew        Status = "NEW"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

var statuses = []Status{StatusNew, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, bool) {
	up := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range statuses {
		if st == up {
			return st, true
		}
	}
	return "", false
}

// Booking is a customer's request for a catalog service. Name, price and currency are
// snapshotted from the catalog at creation.
type Booking struct {
	ID          string    `db:"id" json:"-"`
	TenantID    string    `db:"tenant_id" json:"-"`
	BkgRef      string    `db:"bkg_ref" json:"bkgRef"`
	Status      Status    `db:"status" json:"status"`
	FullName    string    `db:"full_name" json:"fullName"`
	Email       string    `db:"email" json:"email"`
	ServiceSlug string    `db:"service_slug" json:"serviceSlug"`
	ServiceName string    `db:"service_name_snapshot" json:"serviceName"`
	Price       int64     `db:"price_snapshot" json:"price"`
	Currency    string    `db:"currency" json:"currency"`
	PreferredAt time.Time `db:"preferred_at" json:"preferredAt"`
	Notes       string    `db:"notes" json:"notes"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// TrackView is what the public tracking endpoint reveals.
type TrackView struct {
	BkgRef      string    `json:"bkgRef"`
	Status      Status    `json:"status"`
	ServiceName string    `json:"serviceName"`
	PreferredAt time.Time `json:"preferredAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (b *Booking) Track() TrackView {
	return TrackView{BkgRef: b.BkgRef, Status: b.Status, ServiceName: b.ServiceName, PreferredAt: b.PreferredAt, CreatedAt: b.CreatedAt}
}

// ParseDate accepts YYYY-MM-DD (midnight UTC) or RFC 3339.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListFilter is the validated admin listing query.
type ListFilter struct {
	Status   Status
	Day      *time.Time
	Page     int
	PageSize int
}

// Offset is the row offset of the filter's page.
func (f ListFilter) Offset() int { return (f.Page - 1) * f.PageSize }

// ParseListFilter validates raw query values. Empty status or "ALL" means any status.
// Errors are keyed by query parameter.
func ParseListFilter(status, date, page, pageSize string) (ListFilter, map[string][]string) {
	f := ListFilter{Page: 1, PageSize: DefaultPageSize}
	fields := map[string][]string{}

	if s := strings.TrimSpace(status); s != "" && !strings.EqualFold(s, "ALL") {
		st, ok := ParseStatus(s)
		if !ok {
			fields["status"] = append(fields["status"], "must be one of NEW, CONFIRMED, IN_PROGRESS, COMPLETED, CANCELLED")
		}
		f.Status = st
	}
	if d := strings.TrimSpace(date); d != "" {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			fields["date"] = append(fields["date"], "must be YYYY-MM-DD")
		} else {
			f.Day = &t
		}
	}
	if p := strings.TrimSpace(page); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			fields["page"] = append(fields["page"], "must be an integer of at least 1")
		} else {
			f.Page = n
		}
	}
	if ps := strings.TrimSpace(pageSize); ps != "" {
		n, err := strconv.Atoi(ps)
		if err != nil || n < 1 || n > MaxPageSize {
			fields["pageSize"] = append(fields["pageSize"], "must be an integer between 1 and 100")
		} else {
			f.PageSize = n
		}
	}
	if len(fields) > 0 {
		return ListFilter{}, fields
	}
	return f, nil
}

// Page is one page of the admin listing.
type Page struct {
	Bookings   []*Booking `json:"bookings"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	Total      int        `json:"total"`
	TotalPages int        `json:"totalPages"`
}
