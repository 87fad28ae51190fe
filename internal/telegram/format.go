package telegram

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"comingsoon/internal/feed"
	"comingsoon/internal/model"
	"comingsoon/internal/view"
)

// Telegram rejects messages over 4096 UTF-16 code units.
const (
	maxMessageLen = 4000
	maxFieldLen   = 100
	listEmailLen  = 60
	listFieldLen  = 16
)

// clip shortens s to at most limit runes, marking the cut with an ellipsis.
func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}

// FormatNotification formats a new lead as a Telegram notification message.
func FormatNotification(rec model.DisplayRecord) string {
	var b strings.Builder
	b.WriteString("New subscriber\n\n")
	b.WriteString(clip(rec.Email, maxFieldLen))
	fmt.Fprintf(&b, "\n%s, %s, %s",
		clip(rec.Network.City, maxFieldLen), clip(rec.Network.Region, maxFieldLen), clip(rec.Network.Country, maxFieldLen))
	fmt.Fprintf(&b, "\nReferer: %s", clip(rec.Request.Referer, maxFieldLen))
	fmt.Fprintf(&b, "\n%s", view.FormatTime(rec.CapturedAt))
	if len(rec.Flags) > 0 {
		fmt.Fprintf(&b, "\nFlags: %s", strings.Join(rec.Flags, ", "))
	}
	fmt.Fprintf(&b, "\n\n/lead %s", rec.ID)
	return b.String()
}

// FormatStats formats the subscriber and country totals of a snapshot.
func FormatStats(snap feed.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subscribers: %d\n", snap.Total())
	fmt.Fprintf(&b, "Countries: %d", snap.Countries)
	if snap.Total() > 0 {
		fmt.Fprintf(&b, "\nLatest: %s (%s)", clip(snap.Records[0].Email, maxFieldLen), view.FormatTime(snap.Records[0].CapturedAt))
	}
	return b.String()
}

// FormatLatest formats a newest-first list of leads.
func FormatLatest(records []model.DisplayRecord) string {
	if len(records) == 0 {
		return "No subscribers yet."
	}
	var b strings.Builder
	b.WriteString("Latest subscribers:\n")
	for i, r := range records {
		fmt.Fprintf(&b, "\n%d. %s\n   %s · %s\n", i+1,
			clip(r.Email, listEmailLen), clip(r.Network.Country, listFieldLen), view.FormatTime(r.CapturedAt))
	}
	return b.String()
}

// FormatDetail formats every group of a lead detail.
func FormatDetail(d view.Detail) string {
	if d.Empty {
		return "No subscriber selected."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Subscriber %s\n", d.ID)
	for _, g := range d.Groups {
		fmt.Fprintf(&b, "\n%s:\n", g.Title)
		for _, f := range g.Fields {
			fmt.Fprintf(&b, "  %s: %s\n", f.Label, clip(f.Value, maxFieldLen))
		}
	}
	if len(d.Flags) > 0 {
		fmt.Fprintf(&b, "\nFlags: %s\n", strings.Join(d.Flags, ", "))
	}
	return b.String()
}
