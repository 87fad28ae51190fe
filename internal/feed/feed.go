// Package feed turns stored subscriber documents into display-ready snapshots
// and keeps standing subscriptions up to date as the collection changes.
package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"comingsoon/internal/model"
)

// Source is the read side of the subscriber store.
type Source interface {
	ListDocuments(ctx context.Context) ([]model.Document, error)
	Revision(ctx context.Context) (model.Revision, error)
}

// FeedError reports a failed activation or a failure of a running subscription.
type FeedError struct {
	Op  string
	Err error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed %s: %v", e.Op, e.Err)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// Snapshot is the full, newest-first state of the collection at one point in time.
type Snapshot struct {
	Records   []model.DisplayRecord
	Countries int
	Revision  model.Revision
	LoadedAt  time.Time
}

// Total returns the number of records in the snapshot.
func (s Snapshot) Total() int {
	return len(s.Records)
}

// Find returns the record with the given document ID.
func (s Snapshot) Find(id string) (*model.DisplayRecord, bool) {
	for i := range s.Records {
		if s.Records[i].ID == id {
			return &s.Records[i], true
		}
	}
	return nil, false
}

// Load reads the whole collection once and builds a snapshot from it.
func Load(ctx context.Context, src Source) (Snapshot, error) {
	// Read the revision first so a write racing the listing is picked up
	// by the next revision check instead of being missed.
	rev, err := src.Revision(ctx)
	if err != nil {
		return Snapshot{}, &FeedError{Op: "revision", Err: err}
	}
	docs, err := src.ListDocuments(ctx)
	if err != nil {
		return Snapshot{}, &FeedError{Op: "list", Err: err}
	}

	records := make([]model.DisplayRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, Decode(d))
	}
	return Snapshot{
		Records:   records,
		Countries: CountCountries(records),
		Revision:  rev,
		LoadedAt:  time.Now().UTC(),
	}, nil
}

// Decode maps a raw document to a DisplayRecord, substituting display sentinels
// for every missing field. Malformed input is kept and flagged, never dropped.
func Decode(doc model.Document) model.DisplayRecord {
	field := func(key, def string) string {
		if v := strings.TrimSpace(doc.Fields[key]); v != "" {
			return v
		}
		return def
	}

	rec := model.DisplayRecord{
		ID:  doc.ID,
		Seq: doc.Seq,
		SubscriberRecord: model.SubscriberRecord{
			Email:      field(model.FieldEmail, model.NotAvailable),
			CapturedAt: doc.CapturedAt,
			Network: model.Network{
				IP:        field(model.FieldIP, model.Unknown),
				Country:   field(model.FieldCountry, model.Unknown),
				City:      field(model.FieldCity, model.Unknown),
				Region:    field(model.FieldRegion, model.Unknown),
				Timezone:  field(model.FieldTimezone, model.Unknown),
				Latitude:  field(model.FieldLatitude, model.Unknown),
				Longitude: field(model.FieldLongitude, model.Unknown),
			},
			Request: model.Request{
				Host:           field(model.FieldHost, model.Unknown),
				Path:           field(model.FieldPath, model.RootPath),
				Referer:        field(model.FieldReferer, model.Direct),
				UserAgent:      field(model.FieldUserAgent, model.Unknown),
				AcceptLanguage: field(model.FieldAcceptLanguage, model.Unknown),
			},
			EdgeMeta: model.EdgeMeta{
				RayID:        field(model.FieldRayID, model.Unknown),
				VisitorFlags: field(model.FieldVisitorFlags, model.Unknown),
			},
			Source: field(model.FieldSource, model.Unknown),
		},
	}

	rec.Flags = append(rec.Flags, doc.Issues...)
	switch {
	case rec.Email == model.NotAvailable:
		rec.Flags = append(rec.Flags, "missing email")
	case !strings.Contains(rec.Email, "@"):
		rec.Flags = append(rec.Flags, "invalid email")
	}
	return rec
}

// CountCountries returns the number of distinct country values, the
// Unknown sentinel included.
func CountCountries(records []model.DisplayRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.Network.Country] = struct{}{}
	}
	return len(seen)
}
