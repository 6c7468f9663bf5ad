/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package notifications buffers outbound email jobs and delivers them with
// retries.
package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is one email to deliver. BookingID is set for appointment reminders.
type Job struct {
	ID         string    `json:"id"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	HTML       string    `json:"html"`
	BookingID  string    `json:"booking_id,omitempty"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob builds a job with a fresh id.
func NewJob(to, subject, html, bookingID string) Job {
	return Job{
		ID:         uuid.NewString(),
		To:         to,
		Subject:    subject,
		HTML:       html,
		BookingID:  bookingID,
		EnqueuedAt: time.Now().UTC(),
	}
}

func encodeJob(job Job) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return data, nil
}

func decodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	return job, nil
}
