package googlecalendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// dateLayout is the layout of all-day event dates.
const dateLayout = "2006-01-02"

// ShouldSyncEvent checks if an event should be synced. Cancelled instances
// carry no times and are skipped.
func ShouldSyncEvent(event *calendar.Event) bool {
	return event != nil && event.Id != "" && event.Status != "cancelled"
}

// toRecord wraps an event. The update time orders the record because the
// list call filters on it; an unreadable one leaves the timestamp zero and
// the event is still synced.
func toRecord(event *calendar.Event) (domain.ExternalRecord, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return domain.ExternalRecord{}, fmt.Errorf("event %s: encode: %w", event.Id, err)
	}
	record := domain.ExternalRecord{
		ExternalID: event.Id,
		EntityType: domain.EntityCalendarEvent,
		Payload:    payload,
	}
	if updated, err := time.Parse(time.RFC3339, event.Updated); err == nil {
		record.Timestamp = updated
	}
	return record, nil
}

// MapToCanonical converts an event into a canonical draft.
func (a *Adapter) MapToCanonical(record domain.ExternalRecord) (*domain.CanonicalDraft, error) {
	var event calendar.Event
	if err := json.Unmarshal(record.Payload, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	start, err := eventTime(event.Start)
	if err != nil {
		return nil, fmt.Errorf("event %s start: %w", event.Id, err)
	}
	end, err := eventTime(event.End)
	if err != nil {
		return nil, fmt.Errorf("event %s end: %w", event.Id, err)
	}

	attrs := map[string]any{
		"calendar_id": PrimaryCalendar,
		"status":      event.Status,
		"all_day":     event.Start != nil && event.Start.DateTime == "",
	}
	if event.Location != "" {
		attrs["location"] = event.Location
	}
	if event.Description != "" {
		attrs["description"] = event.Description
	}
	if event.HtmlLink != "" {
		attrs["html_link"] = event.HtmlLink
	}
	if event.RecurringEventId != "" {
		attrs["recurring_event_id"] = event.RecurringEventId
	}
	if organiser := getOrganiserEmail(&event); organiser != "" {
		attrs["organiser"] = organiser
	}
	if attendees := formatAttendees(event.Attendees); attendees != "" {
		attrs["attendees"] = attendees
	}

	return &domain.CanonicalDraft{
		EntityType: domain.EntityCalendarEvent,
		Title:      event.Summary,
		StartAt:    start,
		EndAt:      end,
		Attributes: attrs,
	}, nil
}

// eventTime reads a timed or all-day event boundary.
func eventTime(t *calendar.EventDateTime) (time.Time, error) {
	if t == nil {
		return time.Time{}, errors.New("missing time")
	}
	if t.DateTime != "" {
		return time.Parse(time.RFC3339, t.DateTime)
	}
	if t.Date != "" {
		loc := time.UTC
		if t.TimeZone != "" {
			if tz, err := time.LoadLocation(t.TimeZone); err == nil {
				loc = tz
			}
		}
		return time.ParseInLocation(dateLayout, t.Date, loc)
	}
	return time.Time{}, errors.New("empty time")
}

// formatAttendees formats the attendee list as a string.
func formatAttendees(attendees []*calendar.EventAttendee) string {
	var names []string
	for _, a := range attendees {
		if a.DisplayName != "" {
			names = append(names, a.DisplayName)
		} else if a.Email != "" {
			names = append(names, a.Email)
		}
	}
	return strings.Join(names, ", ")
}

// getOrganiserEmail extracts the organiser email from an event.
func getOrganiserEmail(event *calendar.Event) string {
	if event.Organizer != nil { //nolint:misspell // Google API field name
		return event.Organizer.Email //nolint:misspell // Google API field name
	}
	return ""
}
