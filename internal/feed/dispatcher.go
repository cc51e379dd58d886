package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"worldsim.in/internal/protocol"
)

var errNotConnected = errors.New("feed: not connected")

// Dispatcher sends interventions on two paths: opportunistically down the
// live feed socket, and always via POST /api/intervene. Delivery is best
// effort on both; failures are logged and swallowed, never returned.
type Dispatcher struct {
	session *Session
	apiURL  string
	client  *http.Client
	log     *log.Logger
}

// NewDispatcher builds a dispatcher over an optional session (nil means
// HTTP only) and the API base URL, e.g. http://localhost:8000.
func NewDispatcher(s *Session, apiURL string, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		session: s,
		apiURL:  strings.TrimRight(apiURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Second},
		log:     logger,
	}
}

// Dispatch is fire-and-forget. The socket write is skipped when no
// connection is open; the HTTP POST always goes out. Neither failure
// reaches the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, iv protocol.Intervention) {
	if d.session != nil {
		if err := d.session.writeIntervene(iv); err != nil {
			d.logf("dispatch: socket: %v", err)
		}
	}
	d.post(ctx, iv)
}

func (d *Dispatcher) post(ctx context.Context, iv protocol.Intervention) {
	b, err := json.Marshal(iv)
	if err != nil {
		d.logf("dispatch: encode: %v", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.apiURL+"/api/intervene", bytes.NewReader(b))
	if err != nil {
		d.logf("dispatch: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logf("dispatch: post: %v", err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		d.logf("dispatch: post: status %d", resp.StatusCode)
	}
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.log != nil {
		d.log.Printf(format, args...)
	}
}
