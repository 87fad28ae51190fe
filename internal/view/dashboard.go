package view

import (
	"comingsoon/internal/feed"
	"comingsoon/internal/model"
)

// State is the display state of the visitor table.
type State string

// Table states. Failed is terminal: it is left only by reloading the page.
const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateEmpty   State = "empty"
	StateFailed  State = "failed"
)

// Row is one line of the visitor table.
type Row struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	IP          string `json:"ip"`
	Location    string `json:"location"`
	Country     string `json:"country"`
	Coordinates string `json:"coordinates"`
	Time        string `json:"time"`
	Flagged     bool   `json:"flagged,omitempty"`
}

// Dashboard is the summary and table shown to a signed-in admin.
type Dashboard struct {
	State     State  `json:"state"`
	Total     int    `json:"total"`
	Countries int    `json:"countries"`
	Rows      []Row  `json:"rows"`
	Error     string `json:"error,omitempty"`
}

// NewDashboard builds the dashboard for a snapshot.
func NewDashboard(snap feed.Snapshot) Dashboard {
	d := Dashboard{
		State:     StateReady,
		Total:     snap.Total(),
		Countries: snap.Countries,
		Rows:      make([]Row, 0, len(snap.Records)),
	}
	for _, r := range snap.Records {
		d.Rows = append(d.Rows, NewRow(r))
	}
	if d.Total == 0 {
		d.State = StateEmpty
	}
	return d
}

// FailedDashboard is the terminal no-data state shown when the feed fails.
func FailedDashboard() Dashboard {
	return Dashboard{
		State: StateFailed,
		Rows:  []Row{},
		Error: "Live data is unavailable. Reload the page to try again.",
	}
}

// NewRow maps a record to its table row.
func NewRow(r model.DisplayRecord) Row {
	return Row{
		ID:          r.ID,
		Email:       r.Email,
		IP:          r.Network.IP,
		Location:    r.Network.City + ", " + r.Network.Region,
		Country:     r.Network.Country,
		Coordinates: Coordinates(r.Network.Latitude, r.Network.Longitude),
		Time:        FormatTime(r.CapturedAt),
		Flagged:     len(r.Flags) > 0,
	}
}
