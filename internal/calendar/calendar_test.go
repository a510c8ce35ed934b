package calendar

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appointment-scheduler/internal/appointment"
	"appointment-scheduler/internal/model"
)

func record(id string, st model.Status, at time.Time) appointment.Record {
	return appointment.Record{
		Appointment: model.Appointment{
			ID:             id,
			Title:          "Title " + id,
			Description:    "Desc " + id,
			SchedulerID:    "u1",
			CounterpartyID: "u2",
			Status:         st,
		},
		Role:             model.RoleScheduler,
		SchedulerName:    "Alice",
		CounterpartyName: "Bob",
		Instant:          at,
	}
}

func TestExport(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	at := now.Add(24 * time.Hour)

	withAudio := record("a", model.StatusPending, at)
	withAudio.AudioURL = "http://media.test/media/audio/x.webm"
	records := []appointment.Record{
		withAudio,
		record("b", model.StatusAccepted, at),
		record("c", model.StatusDeclined, at),
		record("d", model.StatusCancelled, at),
		record("bad", model.StatusPending, time.Time{}),
	}

	out := Export(records, now)
	cal, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)

	events := cal.Events()
	require.Len(t, events, 4)

	want := map[string]string{
		"a@appointment-scheduler": "TENTATIVE",
		"b@appointment-scheduler": "CONFIRMED",
		"c@appointment-scheduler": "CANCELLED",
		"d@appointment-scheduler": "CANCELLED",
	}
	for _, ev := range events {
		status := ev.GetProperty(ical.ComponentPropertyStatus)
		require.NotNil(t, status)
		assert.Equal(t, want[ev.Id()], status.Value, ev.Id())

		start, err := ev.GetStartAt()
		require.NoError(t, err)
		assert.True(t, start.Equal(at))
	}

	assert.Contains(t, out, "METHOD:PUBLISH")
	assert.Contains(t, out, "CN=Alice")
	assert.Contains(t, out, "http://media.test/media/audio/x.webm")
	assert.NotContains(t, out, "Title bad")
}

func TestExportEmpty(t *testing.T) {
	out := Export(nil, time.Now())
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.NotContains(t, out, "BEGIN:VEVENT")
}
