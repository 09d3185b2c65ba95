package reminder

import (
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/email"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

func DurationText(minutes int) string {
	switch minutes {
	case 30:
		return "30 minutes"
	case 60:
		return "1 hour"
	case 90:
		return "1.5 hours"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

func buildMessage(d model.AppointmentDetail, lookaheadHours int) email.Message {
	a := d.Appointment
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", d.Patient.Name)
	fmt.Fprintf(&b, "This is a reminder of your upcoming appointment.\n\n")
	fmt.Fprintf(&b, "Date: %s\n", a.Start.Format("January 02, 2006"))
	fmt.Fprintf(&b, "Time: %s - %s\n", a.Start.Format("03:04 PM"), a.End().Format("03:04 PM"))
	fmt.Fprintf(&b, "Duration: %s\n", DurationText(a.DurationMinutes))
	fmt.Fprintf(&b, "Doctor: Dr. %s\n", d.Doctor.Name)
	if d.Doctor.Specialty != "" {
		fmt.Fprintf(&b, "Specialty: %s\n", d.Doctor.Specialty)
	}
	b.WriteString("\nPlease arrive on time for your appointment.\n")

	return email.Message{
		To:      d.Patient.Email,
		Subject: fmt.Sprintf("Appointment Reminder - In %d Hours", lookaheadHours),
		Body:    b.String(),
	}
}
