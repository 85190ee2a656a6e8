package notification

import (
	"fmt"
	"strings"
)

// FormatMinor renders a minor-unit amount, e.g. 1000 GBP -> "10.00 GBP".
func FormatMinor(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, strings.ToUpper(currency))
}

// OrderPaid is the receipt email sent after a successful payment.
func OrderPaid(tenantID, to, ordID, rcpNumber string, total int64, currency string) Message {
	body := fmt.Sprintf("Thank you for your payment.\n\nOrder: %s\nReceipt: %s\nTotal: %s\n", ordID, rcpNumber, FormatMinor(total, currency))
	return Message{
		Kind:     KindOrderPaid,
		TenantID: tenantID,
		To:       []string{to},
		Subject:  "Receipt " + rcpNumber,
		Body:     body,
	}
}

// BookingDetails feeds the two booking emails.
type BookingDetails struct {
	TenantID      string
	BkgRef        string
	FullName      string
	Email         string
	ServiceName   string
	PreferredDate string
	Notes         string
	TrackingURL   string
}

// BookingCustomer confirms receipt of a booking request to the customer.
func BookingCustomer(d BookingDetails) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nWe have received your booking request for %s.\n\nReference: %s\nPreferred date: %s\n", d.FullName, d.ServiceName, d.BkgRef, d.PreferredDate)
	if d.TrackingURL != "" {
		fmt.Fprintf(&b, "\nTrack your booking: %s\n", d.TrackingURL)
	}
	return Message{
		Kind:     KindBookingCustomer,
		TenantID: d.TenantID,
		To:       []string{d.Email},
		Subject:  "Booking received " + d.BkgRef,
		Body:     b.String(),
	}
}

// BookingInbox tells staff about a new booking. An empty inbox yields a message with no recipients.
func BookingInbox(inbox string, d BookingDetails) Message {
	var to []string
	if inbox != "" {
		to = []string{inbox}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "New booking %s\n\nService: %s\nName: %s\nEmail: %s\nPreferred date: %s\n", d.BkgRef, d.ServiceName, d.FullName, d.Email, d.PreferredDate)
	if d.Notes != "" {
		fmt.Fprintf(&b, "\nNotes:\n%s\n", d.Notes)
	}
	return Message{
		Kind:     KindBookingInbox,
		TenantID: d.TenantID,
		To:       to,
		Subject:  "New booking " + d.BkgRef + " - " + d.ServiceName,
		Body:     b.String(),
	}
}
