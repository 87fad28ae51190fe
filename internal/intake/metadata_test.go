package intake

import (
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"comingsoon/internal/model"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		trustPeer  bool
		want       string
	}{
		{
			name: "connecting ip wins",
			headers: map[string]string{
				"CF-Connecting-IP": "203.0.113.1",
				"X-Forwarded-For":  "198.51.100.2",
				"X-Real-IP":        "192.0.2.3",
			},
			want: "203.0.113.1",
		},
		{
			name:    "first forwarded hop",
			headers: map[string]string{"X-Forwarded-For": " 198.51.100.2 , 10.0.0.1", "X-Real-IP": "192.0.2.3"},
			want:    "198.51.100.2",
		},
		{
			name:    "empty forwarded entry falls through",
			headers: map[string]string{"X-Forwarded-For": " , 10.0.0.1", "X-Real-IP": "192.0.2.3"},
			want:    "192.0.2.3",
		},
		{
			name:    "real ip",
			headers: map[string]string{"X-Real-IP": "192.0.2.3"},
			want:    "192.0.2.3",
		},
		{
			name:       "peer address when trusted",
			remoteAddr: "192.0.2.44:51234",
			trustPeer:  true,
			want:       "192.0.2.44",
		},
		{
			name:       "peer address without port",
			remoteAddr: "192.0.2.45",
			trustPeer:  true,
			want:       "192.0.2.45",
		},
		{
			name:       "peer address ignored by default",
			remoteAddr: "192.0.2.44:51234",
			want:       "Unknown",
		},
		{
			name: "nothing at all",
			want: "Unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/subscribe", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if diff := cmp.Diff(tt.want, ClientIP(r, tt.trustPeer)); diff != "" {
				t.Errorf("ClientIP mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractMetadataDefaults(t *testing.T) {
	r := httptest.NewRequest("POST", "/subscribe", nil)
	r.Host = ""

	want := Metadata{
		Network: model.Network{
			IP: "Unknown", Country: "Unknown", City: "Unknown", Region: "Unknown",
			Timezone: "Unknown", Latitude: "Unknown", Longitude: "Unknown",
		},
		Request: model.Request{
			Host: "Unknown", Path: "/subscribe", Referer: "Direct", UserAgent: "Unknown", AcceptLanguage: "Unknown",
		},
		EdgeMeta: model.EdgeMeta{RayID: "Unknown", VisitorFlags: "Unknown"},
	}
	if diff := cmp.Diff(want, ExtractMetadata(r, false)); diff != "" {
		t.Errorf("ExtractMetadata mismatch (-want +got):\n%s", diff)
	}
}
