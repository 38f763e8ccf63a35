// Package webhook posts batches of document changes to an external URL,
// signed with HMAC-SHA256 when a secret is configured.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	queueSize     = 256
	maxBatch      = 50
	flushInterval = time.Second
	sendTimeout   = 10 * time.Second

	// TimestampHeader carries the unix time the signature covers
	TimestampHeader = "X-SZ-Timestamp"
	// SignatureHeader is "sha256=" + hex HMAC of timestamp + "." + body
	SignatureHeader = "X-SZ-Signature"
)

// Event is one document change.
type Event struct {
	Project    string         `json:"project"`
	Collection string         `json:"collection"`
	Type       string         `json:"type"`
	DocID      string         `json:"doc_id"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// Payload is the POST body.
type Payload struct {
	SentAt string  `json:"sent_at"`
	Events []Event `json:"events"`
}

// Dispatcher queues events and posts them from a single goroutine.
type Dispatcher struct {
	url         string
	secret      string
	collections map[string]bool
	client      *http.Client
	queue       chan Event

	// OnResult observes every POST; nil is fine
	OnResult func(events int, err error)
}

// New returns a Dispatcher for url. When collections is non-empty only those
// collections are forwarded.
func New(url, secret string, collections []string) *Dispatcher {
	d := &Dispatcher{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: sendTimeout},
		queue:  make(chan Event, queueSize),
	}
	if len(collections) > 0 {
		d.collections = make(map[string]bool, len(collections))
		for _, c := range collections {
			d.collections[c] = true
		}
	}
	return d
}

// Enqueue adds ev without blocking. Events are dropped when the queue is full.
func (d *Dispatcher) Enqueue(ev Event) {
	if d.collections != nil && !d.collections[ev.Collection] {
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case d.queue <- ev:
	default:
		slog.Warn("webhook queue full, dropping event", "collection", ev.Collection, "doc", ev.DocID)
	}
}

// Run sends queued events in batches until ctx is done, then flushes what is
// left.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var batch []Event
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		err := d.Send(ctx, batch)
		if err != nil {
			slog.Error("webhook", "url", d.url, "events", len(batch), "err", err)
		}
		if d.OnResult != nil {
			d.OnResult(len(batch), err)
		}
		batch = nil
	}

	for {
		select {
		case ev := <-d.queue:
			batch = append(batch, ev)
			if len(batch) >= maxBatch {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case ev := <-d.queue:
					batch = append(batch, ev)
				default:
					drained = true
				}
			}
			final, cancel := context.WithTimeout(context.Background(), sendTimeout)
			flush(final)
			cancel()
			return
		}
	}
}

// Send posts events synchronously. Any non-2xx status is an error.
func (d *Dispatcher) Send(ctx context.Context, events []Event) error {
	body, err := json.Marshal(Payload{
		SentAt: time.Now().UTC().Format(time.RFC3339),
		Events: events,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sz-cloud-webhook/1")

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(TimestampHeader, ts)
	if d.secret != "" {
		req.Header.Set(SignatureHeader, Sign(d.secret, ts, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", d.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d", d.url, resp.StatusCode)
	}
	return nil
}

// Sign returns the SignatureHeader value for body sent at ts.
func Sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature in constant time.
func Verify(secret, ts string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, ts, body)), []byte(signature))
}
