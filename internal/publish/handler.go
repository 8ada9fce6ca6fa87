package publish

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Handler serves GET /sessions: a newline-delimited JSON stream of
// change Records, replaying from the requested sequence number (default
// 0, i.e. a full snapshot) and then tailing live. The subscription is
// registered before the replay is read so no record published during
// the replay window is missed (a client may see it twice; Records are
// idempotent by seq + sessionId).
func Handler(p *Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from := uint64(0)
		if v := r.URL.Query().Get("from"); v != "" {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				from = n
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		flusher, _ := w.(http.Flusher)

		live, unsubscribe := p.Subscribe()
		defer unsubscribe()

		records, err := p.Replay(from)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		enc := json.NewEncoder(w)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return
			}
		}
		if flusher != nil {
			flusher.Flush()
		}

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-live:
				if !ok {
					return
				}
				if rec.Seq < from {
					continue
				}
				if err := enc.Encode(rec); err != nil {
					return
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
		}
	}
}
