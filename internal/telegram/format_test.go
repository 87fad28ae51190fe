package telegram

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"comingsoon/internal/feed"
	"comingsoon/internal/model"
	"comingsoon/internal/view"
)

func TestParseCountArg(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    int
		wantErr bool
	}{
		{name: "empty uses default", args: "", want: 5},
		{name: "whitespace uses default", args: "   ", want: 5},
		{name: "explicit", args: "3", want: 3},
		{name: "extra words ignored", args: "7 please", want: 7},
		{name: "upper bound", args: "20", want: 20},
		{name: "too large", args: "21", wantErr: true},
		{name: "zero", args: "0", wantErr: true},
		{name: "negative", args: "-2", wantErr: true},
		{name: "not a number", args: "lots", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCountArg(tt.args, 5, 20)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseCountArg() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseLeadArg(t *testing.T) {
	got, err := ParseLeadArg("  abc-123 trailing ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff("abc-123", got); diff != "" {
		t.Errorf("ParseLeadArg() mismatch (-want +got):\n%s", diff)
	}
	if _, err := ParseLeadArg(" "); err == nil {
		t.Error("expected error for empty argument")
	}
}

func testRecord() model.DisplayRecord {
	return feed.Decode(model.Document{
		ID:         "doc-1",
		Seq:        1,
		CapturedAt: time.Date(2026, 5, 6, 7, 8, 0, 0, time.UTC),
		Fields: map[string]string{
			model.FieldEmail:   "lead@example.com",
			model.FieldCountry: "DE",
			model.FieldCity:    "Berlin",
			model.FieldRegion:  "Berlin",
			model.FieldReferer: "https://news.example.org/",
		},
	})
}

func TestFormatNotification(t *testing.T) {
	want := `New subscriber

lead@example.com
Berlin, Berlin, DE
Referer: https://news.example.org/
May 6, 2026, 07:08 UTC

/lead doc-1`
	if diff := cmp.Diff(want, FormatNotification(testRecord())); diff != "" {
		t.Errorf("FormatNotification() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatNotificationFlags(t *testing.T) {
	rec := feed.Decode(model.Document{ID: "doc-2"})
	got := FormatNotification(rec)
	if !strings.Contains(got, "Flags: missing email") {
		t.Errorf("expected flags line, got:\n%s", got)
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "short", in: "a@b.com", limit: 10, want: "a@b.com"},
		{name: "exact", in: "abcde", limit: 5, want: "abcde"},
		{name: "long", in: "abcdefgh", limit: 5, want: "abcd…"},
		{name: "multibyte", in: "ééééé", limit: 3, want: "éé…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, clip(tt.in, tt.limit)); diff != "" {
				t.Errorf("clip() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatOversizedLead(t *testing.T) {
	rec := testRecord()
	rec.Email = strings.Repeat("a", 64<<10) + "@example.com"
	rec.Network.Country = strings.Repeat("X", 8<<10)
	rec.Request.Referer = strings.Repeat("r", 8<<10)

	got := FormatNotification(rec)
	if n := utf8.RuneCountInString(got); n > maxMessageLen {
		t.Errorf("notification has %d runes, limit %d", n, maxMessageLen)
	}
	if !strings.HasSuffix(got, "/lead doc-1") {
		t.Errorf("notification lost the /lead line:\n%s", got[len(got)-40:])
	}

	records := make([]model.DisplayRecord, 20)
	for i := range records {
		records[i] = rec
	}
	if n := utf8.RuneCountInString(FormatLatest(records)); n > maxMessageLen {
		t.Errorf("latest list has %d runes, limit %d", n, maxMessageLen)
	}
	if n := utf8.RuneCountInString(FormatDetail(view.NewDetail(&rec))); n > maxMessageLen {
		t.Errorf("detail has %d runes, limit %d", n, maxMessageLen)
	}
}

func TestFormatLatest(t *testing.T) {
	if diff := cmp.Diff("No subscribers yet.", FormatLatest(nil)); diff != "" {
		t.Errorf("FormatLatest(nil) mismatch (-want +got):\n%s", diff)
	}
	want := "Latest subscribers:\n\n1. lead@example.com\n   DE · May 6, 2026, 07:08 UTC\n"
	if diff := cmp.Diff(want, FormatLatest([]model.DisplayRecord{testRecord()})); diff != "" {
		t.Errorf("FormatLatest() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatDetail(t *testing.T) {
	if diff := cmp.Diff("No subscriber selected.", FormatDetail(view.NewDetail(nil))); diff != "" {
		t.Errorf("FormatDetail(empty) mismatch (-want +got):\n%s", diff)
	}

	rec := testRecord()
	got := FormatDetail(view.NewDetail(&rec))
	for _, want := range []string{
		"Subscriber doc-1",
		"Contact Information:",
		"  Email: lead@example.com",
		"Location Data:",
		"  City: Berlin",
		"  Coordinates: N/A",
		"Device Information:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("detail missing %q, got:\n%s", want, got)
		}
	}
}
