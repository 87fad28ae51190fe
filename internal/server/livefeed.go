package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/feeds"
	"github.com/gorilla/websocket"

	"comingsoon/internal/feed"
	"comingsoon/internal/view"
)

const writeWait = 10 * time.Second

// handleFeed pushes one dashboard frame per snapshot over a websocket. Each
// connection owns exactly one subscription, released when either side goes
// away. A feed failure sends a terminal failed frame and closes the socket.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, w.Header())
	if err != nil {
		s.log.Warn("websocket upgrade", "error", err, "request_id", RequestID(r.Context()))
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends data; reading only detects the disconnect.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	sub, err := s.feed.Subscribe(ctx)
	if err != nil {
		s.closeFailed(conn)
		return
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.Snapshots():
			if !ok {
				if sub.Err() != nil {
					s.closeFailed(conn)
				}
				return
			}
			if err := writeFrame(conn, view.NewDashboard(snap)); err != nil {
				s.log.Debug("websocket write", "error", err)
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, d view.Dashboard) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(d)
}

func (s *Server) closeFailed(conn *websocket.Conn) {
	if err := writeFrame(conn, view.FailedDashboard()); err != nil {
		s.log.Debug("websocket write", "error", err)
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "feed unavailable")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (s *Server) handleVisitorsJSON(w http.ResponseWriter, r *http.Request) {
	snap, err := feed.Load(r.Context(), s.feed.Source())
	if err != nil {
		s.log.Error("load visitors", "error", err, "request_id", RequestID(r.Context()))
		writeJSON(w, http.StatusServiceUnavailable, view.FailedDashboard())
		return
	}
	writeJSON(w, http.StatusOK, view.NewDashboard(snap))
}

// handleAtom exports the leads as an Atom feed, newest first.
func (s *Server) handleAtom(w http.ResponseWriter, r *http.Request) {
	snap, err := feed.Load(r.Context(), s.feed.Source())
	if err != nil {
		s.log.Error("load atom feed", "error", err, "request_id", RequestID(r.Context()))
		http.Error(w, "feed unavailable", http.StatusServiceUnavailable)
		return
	}

	body, err := atomFeed(baseURL(r), snap)
	if err != nil {
		s.log.Error("encode atom feed", "error", err, "request_id", RequestID(r.Context()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func atomFeed(base string, snap feed.Snapshot) (string, error) {
	updated := snap.LoadedAt
	if len(snap.Records) > 0 && !snap.Records[0].CapturedAt.IsZero() {
		updated = snap.Records[0].CapturedAt
	}
	f := &feeds.Feed{
		Id:          base + "/admin/feed.atom",
		Title:       "Coming soon subscribers",
		Link:        &feeds.Link{Href: base + "/admin"},
		Description: fmt.Sprintf("%d subscribers from %d countries", snap.Total(), snap.Countries),
		Updated:     updated,
	}
	for _, rec := range snap.Records {
		row := view.NewRow(rec)
		f.Items = append(f.Items, &feeds.Item{
			Id:          "urn:uuid:" + rec.ID,
			Title:       rec.Email,
			Link:        &feeds.Link{Href: base + "/admin/visitors/" + rec.ID},
			Description: fmt.Sprintf("%s · %s · %s", row.Location, row.Country, rec.Request.Referer),
			Created:     rec.CapturedAt,
		})
	}
	return f.ToAtom()
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
