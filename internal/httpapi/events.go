package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/homedash/dashd/internal/jobengine"
)

// subscriberQueueSize bounds how far a viewer can fall behind before its
// pending deltas are dropped and it is resynced from a full snapshot.
const subscriberQueueSize = 64

// handleEvents streams automation state as server-sent events. Each
// connection first receives one full snapshot per known automation, then
// incremental deltas as they are produced. A connection that can't keep up
// is resynced from fresh snapshots rather than allowed to stall the engine.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(
			w,
			"streaming unsupported",
			http.StatusInternalServerError,
		)

		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.registry.Subscribe(subscriberQueueSize)
	defer sub.Close()

	// Updates published between Subscribe and the snapshots below sit in the
	// queue with their bytes already inside the snapshots; the cursor drops
	// those so no byte is delivered twice.
	cursor := jobengine.NewCursor()

	if err := s.sendSnapshots(w, flusher, cursor); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return

		case u, open := <-sub.Updates():
			if !open {
				return
			}

			if sub.NeedsResync() {
				// Deltas were dropped for this connection; fresh full
				// snapshots supersede whatever was pending, including u.
				if err := s.sendSnapshots(w, flusher, cursor); err != nil {
					return
				}

				continue
			}

			if !cursor.Admit(u) {
				continue
			}

			if err := writeEvent(w, u); err != nil {
				return
			}

			flusher.Flush()
		}
	}
}

func (s *Server) sendSnapshots(
	w io.Writer,
	flusher http.Flusher,
	cursor *jobengine.Cursor,
) error {
	for _, a := range s.registry.Automations() {
		view, err := s.registry.Snapshot(a.Name)
		if err != nil {
			continue
		}

		u := jobengine.Update{Automation: a.Name, State: view}

		// On a resync, skip automations whose delivered state is already
		// current.
		if !cursor.Admit(u) {
			continue
		}

		if err := writeEvent(w, u); err != nil {
			return err
		}
	}

	flusher.Flush()

	return nil
}

func writeEvent(w io.Writer, u jobengine.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: automation_update\ndata: %s\n\n", data)

	return err
}
