// Package model defines the domain types used across the application.
package model

import "time"

// Sentinels substituted for values that were not supplied.
const (
	Unknown      = "Unknown"
	NotAvailable = "N/A"
	Direct       = "Direct"
	RootPath     = "/"
)

// SourceComingSoon tags records captured by the coming-soon page form.
const SourceComingSoon = "coming-soon-page"

// Field names of a stored subscriber document.
const (
	FieldEmail          = "email"
	FieldSource         = "source"
	FieldIP             = "ip"
	FieldCountry        = "country"
	FieldCity           = "city"
	FieldRegion         = "region"
	FieldTimezone       = "timezone"
	FieldLatitude       = "latitude"
	FieldLongitude      = "longitude"
	FieldHost           = "host"
	FieldPath           = "path"
	FieldReferer        = "referer"
	FieldUserAgent      = "user_agent"
	FieldAcceptLanguage = "accept_language"
	FieldRayID          = "ray_id"
	FieldVisitorFlags   = "visitor_flags"
)

// Network describes where a submission came from, as reported by the edge proxy.
type Network struct {
	IP        string `json:"ip"`
	Country   string `json:"country"`
	City      string `json:"city"`
	Region    string `json:"region"`
	Timezone  string `json:"timezone"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Request holds the HTTP request details captured with a submission.
type Request struct {
	Host           string `json:"host"`
	Path           string `json:"path"`
	Referer        string `json:"referer"`
	UserAgent      string `json:"userAgent"`
	AcceptLanguage string `json:"acceptLanguage"`
}

// EdgeMeta carries opaque values passed through by the edge proxy.
type EdgeMeta struct {
	RayID        string `json:"rayId"`
	VisitorFlags string `json:"visitorFlags"`
}

// SubscriberRecord is one captured lead. Records are append-only.
type SubscriberRecord struct {
	Email      string    `json:"email"`
	CapturedAt time.Time `json:"capturedAt"`
	Network    Network   `json:"network"`
	Request    Request   `json:"request"`
	EdgeMeta   EdgeMeta  `json:"edgeMeta"`
	Source     string    `json:"source"`
}

// Document is a subscriber row as it comes out of the store, before defaults
// are applied. Fields only contains keys whose stored value was non-empty.
type Document struct {
	ID         string
	Seq        int64
	CapturedAt time.Time
	Fields     map[string]string
	Issues     []string
}

// DisplayRecord is a SubscriberRecord with every field resolved for display.
type DisplayRecord struct {
	ID  string `json:"id"`
	Seq int64  `json:"seq"`
	SubscriberRecord
	Flags []string `json:"flags,omitempty"`
}

// Revision identifies a state of the subscriber collection.
type Revision struct {
	Count  int64
	LastID int64
}

// Admin is an account allowed to view the lead dashboard.
type Admin struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserIdentity is the signed-in admin as seen by the admin surface.
type UserIdentity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}
