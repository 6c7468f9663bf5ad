/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reminders

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/friendsincode/slotkeeper/internal/models"
)

// Subject is the reminder email subject.
const Subject = "Appointment Reminder"

var reminderTemplate = template.Must(template.New("reminder").Parse(`<h2>Appointment Reminder</h2>
<p>Hello {{.ClientName}},</p>
<p>This is a reminder that you have an appointment with {{.ProviderName}} in {{.MinutesUntil}} minutes, at {{.StartTime}}.</p>
<p>The appointment is scheduled for {{.DurationMinutes}} minutes.</p>
<p>Thank you for using our service!</p>
`))

type reminderView struct {
	ClientName      string
	ProviderName    string
	StartTime       string
	MinutesUntil    int
	DurationMinutes int
}

// Render builds the reminder body for b. Names are HTML-escaped.
func Render(b *models.Booking, now time.Time, loc *time.Location) (string, error) {
	if b.Slot == nil {
		return "", fmt.Errorf("booking %s has no slot loaded", b.ID)
	}
	if loc == nil {
		loc = time.UTC
	}

	minutes := int(b.Slot.StartsAt.Sub(now).Round(time.Minute) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	view := reminderView{
		ClientName:      b.Client.DisplayName(),
		ProviderName:    b.Slot.Provider.DisplayName(),
		StartTime:       b.Slot.StartsAt.In(loc).Format("Mon Jan 2 2006, 3:04 PM MST"),
		MinutesUntil:    minutes,
		DurationMinutes: b.Slot.DurationMinutes,
	}

	var buf bytes.Buffer
	if err := reminderTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render reminder: %w", err)
	}
	return buf.String(), nil
}
