// Package view builds the read-only presentation models of the admin surface.
package view

import (
	"time"

	"comingsoon/internal/model"
)

// Field is one labelled value in a detail group.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Wide  bool   `json:"wide,omitempty"`
}

// Group is a titled set of fields.
type Group struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

// Detail is the complete field set of one lead, grouped by category.
// A Detail with Empty set stands for "no selection".
type Detail struct {
	ID     string   `json:"id"`
	Empty  bool     `json:"empty"`
	Groups []Group  `json:"groups"`
	Flags  []string `json:"flags,omitempty"`
}

// Detail group titles.
const (
	GroupContact  = "Contact Information"
	GroupNetwork  = "Network Information"
	GroupLocation = "Location Data"
	GroupRequest  = "Request Details"
	GroupDevice   = "Device Information"
)

// NewDetail groups the fields of rec. A nil rec yields an empty Detail.
func NewDetail(rec *model.DisplayRecord) Detail {
	if rec == nil {
		return Detail{Empty: true}
	}
	n, r := rec.Network, rec.Request
	return Detail{
		ID: rec.ID,
		Groups: []Group{
			{Title: GroupContact, Fields: []Field{
				{Label: "Email", Value: rec.Email},
				{Label: "Source", Value: rec.Source},
				{Label: "Subscribed At", Value: FormatTime(rec.CapturedAt), Wide: true},
			}},
			{Title: GroupNetwork, Fields: []Field{
				{Label: "IP Address", Value: n.IP},
				{Label: "Ray ID", Value: rec.EdgeMeta.RayID},
				{Label: "Visitor", Value: rec.EdgeMeta.VisitorFlags, Wide: true},
			}},
			{Title: GroupLocation, Fields: []Field{
				{Label: "Country", Value: n.Country},
				{Label: "City", Value: n.City},
				{Label: "Region", Value: n.Region},
				{Label: "Timezone", Value: n.Timezone},
				{Label: "Coordinates", Value: Coordinates(n.Latitude, n.Longitude), Wide: true},
			}},
			{Title: GroupRequest, Fields: []Field{
				{Label: "Host", Value: r.Host},
				{Label: "Path", Value: r.Path},
				{Label: "Referer", Value: r.Referer, Wide: true},
				{Label: "Accept Language", Value: r.AcceptLanguage, Wide: true},
			}},
			{Title: GroupDevice, Fields: []Field{
				{Label: "User Agent", Value: r.UserAgent, Wide: true},
			}},
		},
		Flags: rec.Flags,
	}
}

// Coordinates renders "lat, lon" when both parts are known, else "N/A".
func Coordinates(lat, lon string) string {
	if !known(lat) || !known(lon) {
		return model.NotAvailable
	}
	return lat + ", " + lon
}

func known(v string) bool {
	return v != "" && v != model.Unknown
}

// FormatTime renders a capture time for humans; the zero time is "N/A".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return model.NotAvailable
	}
	return t.UTC().Format("Jan 2, 2006, 15:04 UTC")
}
