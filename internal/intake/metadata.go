package intake

import (
	"net"
	"net/http"
	"strings"

	"comingsoon/internal/model"
)

// Headers injected by the edge proxy in front of the service.
const (
	HeaderConnectingIP = "CF-Connecting-IP"
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
	HeaderCountry      = "CF-IPCountry"
	HeaderCity         = "CF-IPCity"
	HeaderRegion       = "CF-Region"
	HeaderTimezone     = "CF-Timezone"
	HeaderLatitude     = "CF-IPLatitude"
	HeaderLongitude    = "CF-IPLongitude"
	HeaderRay          = "CF-Ray"
	HeaderVisitor      = "CF-Visitor"
)

// Metadata is everything captured about a submission besides the email.
type Metadata struct {
	Network  model.Network
	Request  model.Request
	EdgeMeta model.EdgeMeta
}

// ExtractMetadata reads the network and request details of r. Header values
// are taken as given. Every absent value becomes "Unknown", the referer "Direct".
func ExtractMetadata(r *http.Request, trustPeer bool) Metadata {
	h := r.Header
	return Metadata{
		Network: model.Network{
			IP:        ClientIP(r, trustPeer),
			Country:   header(h, HeaderCountry, model.Unknown),
			City:      header(h, HeaderCity, model.Unknown),
			Region:    header(h, HeaderRegion, model.Unknown),
			Timezone:  header(h, HeaderTimezone, model.Unknown),
			Latitude:  header(h, HeaderLatitude, model.Unknown),
			Longitude: header(h, HeaderLongitude, model.Unknown),
		},
		Request: model.Request{
			Host:           orDefault(r.Host, model.Unknown),
			Path:           orDefault(r.URL.Path, model.Unknown),
			Referer:        header(h, "Referer", model.Direct),
			UserAgent:      header(h, "User-Agent", model.Unknown),
			AcceptLanguage: header(h, "Accept-Language", model.Unknown),
		},
		EdgeMeta: model.EdgeMeta{
			RayID:        header(h, HeaderRay, model.Unknown),
			VisitorFlags: header(h, HeaderVisitor, model.Unknown),
		},
	}
}

// ClientIP resolves the client address: edge connecting IP, then the first
// X-Forwarded-For hop, then X-Real-IP, then the transport peer when trusted.
func ClientIP(r *http.Request, trustPeer bool) string {
	if ip := strings.TrimSpace(r.Header.Get(HeaderConnectingIP)); ip != "" {
		return ip
	}
	if fwd := r.Header.Get(HeaderForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get(HeaderRealIP)); ip != "" {
		return ip
	}
	if trustPeer && r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return model.Unknown
}

func header(h http.Header, key, def string) string {
	return orDefault(strings.TrimSpace(h.Get(key)), def)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
