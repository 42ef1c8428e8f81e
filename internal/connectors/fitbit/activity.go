package fitbit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// Activity is a logged Fitbit activity.
type Activity struct {
	LogID          int64   `json:"logId"`
	ActivityName   string  `json:"activityName"`
	ActivityTypeID int64   `json:"activityTypeId"`
	StartTime      string  `json:"startTime"`
	Duration       int64   `json:"duration"`
	Calories       int     `json:"calories"`
	Steps          int     `json:"steps"`
	Distance       float64 `json:"distance"`
	DistanceUnit   string  `json:"distanceUnit"`
	AverageHR      int     `json:"averageHeartRate"`
	LogType        string  `json:"logType"`
	LastModified   string  `json:"lastModified"`
}

// Start parses the activity start time.
func (a *Activity) Start() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, a.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse startTime %q: %w", a.StartTime, err)
	}
	return t, nil
}

func decodeActivity(raw []byte) (*Activity, error) {
	var a Activity
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}
	if a.LogID == 0 {
		return nil, errors.New("activity has no logId")
	}
	return &a, nil
}

// toRecord wraps a raw activity. The start time orders the record because
// the list endpoint filters on it. An activity with an unreadable start time
// is kept with a zero timestamp so mapping fails it as a single record.
// An error means the activity has no usable log id.
func toRecord(raw json.RawMessage) (domain.ExternalRecord, error) {
	a, err := decodeActivity(raw)
	if err != nil {
		return domain.ExternalRecord{}, err
	}
	record := domain.ExternalRecord{
		ExternalID: strconv.FormatInt(a.LogID, 10),
		EntityType: domain.EntityActivity,
		Payload:    append([]byte(nil), raw...),
	}
	if start, err := a.Start(); err == nil {
		record.Timestamp = start
	}
	return record, nil
}

// MapToCanonical converts an activity into a canonical draft.
func (a *Adapter) MapToCanonical(record domain.ExternalRecord) (*domain.CanonicalDraft, error) {
	activity, err := decodeActivity(record.Payload)
	if err != nil {
		return nil, err
	}
	start, err := activity.Start()
	if err != nil {
		return nil, err
	}

	attrs := map[string]any{
		"activity_type_id": activity.ActivityTypeID,
		"calories":         activity.Calories,
		"duration_ms":      activity.Duration,
		"log_type":         activity.LogType,
	}
	if activity.Steps > 0 {
		attrs["steps"] = activity.Steps
	}
	if activity.Distance > 0 {
		attrs["distance"] = activity.Distance
		attrs["distance_unit"] = activity.DistanceUnit
	}
	if activity.AverageHR > 0 {
		attrs["average_heart_rate"] = activity.AverageHR
	}

	return &domain.CanonicalDraft{
		EntityType: domain.EntityActivity,
		Title:      activity.ActivityName,
		StartAt:    start,
		EndAt:      start.Add(time.Duration(activity.Duration) * time.Millisecond),
		Attributes: attrs,
	}, nil
}
