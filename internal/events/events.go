// Package events carries lifecycle notifications to subscribers: the
// in-process log behind GET /events and, when configured, a Kafka topic.
//
// Events are published after the unit of work that produced them commits.
// A publish failure never undoes committed state; emitters log it.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"taxlens/internal/fhe"
	profilemodels "taxlens/internal/profile/models"
)

// Type names an event.
type Type string

const (
	TypeProfileCreated    Type = "profile_created"
	TypeAnalysisRequested Type = "analysis_requested"
	TypeProfileAnalyzed   Type = "profile_analyzed"
	TypeStatsRequested    Type = "stats_requested"
	TypeStatsDecrypted    Type = "stats_decrypted"
)

// Event is one notification. Fields that do not apply to Type are zero.
type Event struct {
	ID            uuid.UUID               `json:"id"`
	Type          Type                    `json:"type"`
	OccurredAt    time.Time               `json:"occurred_at"`
	HTTPRequestID string                  `json:"http_request_id,omitempty"`
	ProfileID     profilemodels.ProfileID `json:"profile_id,omitempty"`
	RequestID     *fhe.RequestID          `json:"request_id,omitempty"`
	Jurisdiction  string                  `json:"jurisdiction,omitempty"`
	Count         *uint64                 `json:"count,omitempty"`
}

// Key groups events of one entity for partitioning.
func (e Event) Key() string {
	switch e.Type {
	case TypeStatsRequested, TypeStatsDecrypted:
		return "jurisdiction:" + e.Jurisdiction
	default:
		return "profile:" + e.ProfileID.String()
	}
}

// Publisher delivers events to one sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

func ProfileCreated(id profilemodels.ProfileID, at time.Time) Event {
	return newEvent(TypeProfileCreated, at, func(e *Event) {
		e.ProfileID = id
	})
}

func AnalysisRequested(id profilemodels.ProfileID, rid fhe.RequestID, at time.Time) Event {
	return newEvent(TypeAnalysisRequested, at, func(e *Event) {
		e.ProfileID = id
		e.RequestID = &rid
	})
}

func ProfileAnalyzed(id profilemodels.ProfileID, rid fhe.RequestID, at time.Time) Event {
	return newEvent(TypeProfileAnalyzed, at, func(e *Event) {
		e.ProfileID = id
		e.RequestID = &rid
	})
}

func StatsRequested(jurisdiction string, rid fhe.RequestID, at time.Time) Event {
	return newEvent(TypeStatsRequested, at, func(e *Event) {
		e.Jurisdiction = jurisdiction
		e.RequestID = &rid
	})
}

func StatsDecrypted(jurisdiction string, count uint64, rid fhe.RequestID, at time.Time) Event {
	return newEvent(TypeStatsDecrypted, at, func(e *Event) {
		e.Jurisdiction = jurisdiction
		e.Count = &count
		e.RequestID = &rid
	})
}

func newEvent(t Type, at time.Time, fill func(*Event)) Event {
	e := Event{ID: uuid.New(), Type: t, OccurredAt: at}
	fill(&e)
	return e
}
