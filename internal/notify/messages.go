package notify

import (
	"fmt"
	"strings"
	"time"

	"salonbook/internal/models"
)

// ClientEmail builds the message a client receives for a reservation event.
// ok is false for events the client is not told about.
func ClientEmail(p models.NotificationPayload, professional string, loc *time.Location) (msg EmailMessage, ok bool) {
	r := p.Reservation
	if r.ClientEmail == "" {
		return EmailMessage{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	when := r.ScheduledAt.In(loc).Format("Monday, 02 January 2006 at 15:04")

	var subject, lead string
	switch p.Event {
	case models.NotifyCreated:
		subject = "We received your booking request"
		lead = fmt.Sprintf("Your request with %s for %s is waiting for confirmation. "+
			"You will usually hear back within %d minutes.", professional, when, int(models.ResponseWindow.Minutes()))
	case models.NotifyConfirmed:
		subject = "Your appointment is confirmed"
		lead = fmt.Sprintf("%s confirmed your appointment on %s.", professional, when)
	case models.NotifyDeclined:
		subject = "Your booking request was declined"
		lead = fmt.Sprintf("%s cannot take your appointment on %s. Please pick another time.", professional, when)
	case models.NotifyExpired:
		subject = "Your booking request expired"
		lead = fmt.Sprintf("%s did not answer your request for %s in time. The slot was released, please book again.", professional, when)
	case models.NotifyCancelled:
		subject = "Your appointment was cancelled"
		lead = fmt.Sprintf("Your appointment with %s on %s was cancelled.", professional, when)
	default:
		return EmailMessage{}, false
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n%s\n\nReference: #%d\n", r.ClientName, lead, r.ID)
	return EmailMessage{
		To:      r.ClientEmail,
		ToName:  r.ClientName,
		Subject: subject,
		Body:    body.String(),
	}, true
}
