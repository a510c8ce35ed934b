// Package calendar renders a caller's appointment view as an iCalendar feed.
package calendar

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"appointment-scheduler/internal/appointment"
	"appointment-scheduler/internal/model"
)

const ProductID = "-//appointment-scheduler//appointments//EN"

// Export builds a PUBLISH calendar with one VEVENT per record. Records whose
// date/time do not parse have no start and are left out.
func Export(records []appointment.Record, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)

	for i := range records {
		r := &records[i]
		if r.Instant.IsZero() {
			continue
		}
		ev := cal.AddEvent(r.ID + "@appointment-scheduler")
		ev.SetDtStampTime(now)
		if !r.CreatedAt.IsZero() {
			ev.SetCreatedTime(r.CreatedAt)
		}
		ev.SetStartAt(r.Instant)
		ev.SetSummary(r.Title)
		if r.Description != "" {
			ev.SetDescription(r.Description)
		}
		ev.SetStatus(eventStatus(r.Status))
		ev.SetOrganizer("urn:uuid:"+r.SchedulerID, ical.WithCN(r.SchedulerName))
		ev.AddAttendee("urn:uuid:"+r.CounterpartyID, ical.WithCN(r.CounterpartyName))
		if r.AudioURL != "" {
			ev.AddAttachmentURL(r.AudioURL, "audio/*")
		}
	}
	return cal.Serialize()
}

func eventStatus(s model.Status) ical.ObjectStatus {
	switch s {
	case model.StatusAccepted:
		return ical.ObjectStatusConfirmed
	case model.StatusPending:
		return ical.ObjectStatusTentative
	}
	return ical.ObjectStatusCancelled
}
