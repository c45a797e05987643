package models

import "time"

// FeatureStatus is the coarse lifecycle flag of a feature request,
// independent of the time-derived display state.
type FeatureStatus string

const (
	FeatureStatusScheduled FeatureStatus = "scheduled"
	FeatureStatusCancelled FeatureStatus = "cancelled"
	FeatureStatusCompleted FeatureStatus = "completed"
)

// Duration bounds for a feature window, in hours.
const (
	MinDurationHours = 1
	MaxDurationHours = 168
)

// FeatureSchedule is one request to feature one catalog event.
//
// RequestedStartAt is the operator's input and never changes. The effective
// window is computed by the allocator on every recompute pass: it is nil for
// cancelled entries and frozen at its last computed value for completed ones.
type FeatureSchedule struct {
	ID               string `gorm:"type:uuid;primaryKey"`
	EventKey         string `gorm:"index"`
	RequestedStartAt time.Time
	EffectiveStartAt *time.Time
	EffectiveEndAt   *time.Time
	DurationHours    int
	Status           FeatureStatus `gorm:"type:varchar(16);index"`
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Active reports whether the entry's effective window covers t.
func (f FeatureSchedule) Active(t time.Time) bool {
	if f.Status != FeatureStatusScheduled || f.EffectiveStartAt == nil || f.EffectiveEndAt == nil {
		return false
	}
	return !t.Before(*f.EffectiveStartAt) && t.Before(*f.EffectiveEndAt)
}

// Event is a catalog listing. Rows are written by the CSV ingestion pipeline;
// this service only reads them and decorates the featured projection fields.
type Event struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	EventKey  string `gorm:"uniqueIndex"`
	Name      string `gorm:"index"`
	Venue     string
	Category  string `gorm:"type:varchar(64)"`
	StartDate string `gorm:"type:varchar(10)"`
	EndDate   string `gorm:"type:varchar(10)"`
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Projection fields, derived per request and never persisted.
	IsFeatured bool       `gorm:"-" json:"is_featured"`
	FeaturedAt *time.Time `gorm:"-" json:"featured_at,omitempty"`
}

// WebhookTarget is an outbound endpoint notified of featured schedule changes.
// Events holds a comma-separated list of event names; empty subscribes to all.
type WebhookTarget struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Events    string    `json:"events"`
	Active    bool      `gorm:"index" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WebhookLog records one delivery attempt. StatusCode 0 means the request
// never reached the endpoint.
type WebhookLog struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	TargetID   string `gorm:"index"`
	Event      string
	StatusCode int
	Error      string
	CreatedAt  time.Time
}

// AuditEntry records an admin action against the featured schedule.
type AuditEntry struct {
	ID        string         `gorm:"type:uuid;primaryKey"`
	Actor     string         `gorm:"index"`
	Action    string         `gorm:"type:varchar(64);index"`
	EntityID  string         `gorm:"index"`
	Detail    map[string]any `gorm:"serializer:json"`
	CreatedAt time.Time
}
