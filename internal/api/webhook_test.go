package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/streamzone/sz/internal/webhook"
)

func TestDocumentChangesReachWebhook(t *testing.T) {
	received := make(chan webhook.Payload, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhook.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		if r.Header.Get(webhook.SignatureHeader) == "" {
			t.Error("missing signature")
		}
		received <- p
	}))
	defer hook.Close()

	h := newTestHarness(t, func(c *Config) {
		c.WebhookURL = hook.URL
		c.WebhookSecret = "hook-secret"
		c.WebhookCollections = []string{"purchases"}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Server.webhook.Run(ctx)

	base := "/v1/projects/" + testProject + "/collections/"
	if resp, body := h.do("POST", base+"roles/documents", h.Key, map[string]any{"data": map[string]any{"nombre": "admin"}}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add role: %d %s", resp.StatusCode, body)
	}
	if resp, body := h.do("PUT", base+"purchases/documents/p1", h.Key, map[string]any{"data": map[string]any{"estado": "pendiente"}}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("set purchase: %d %s", resp.StatusCode, body)
	}

	select {
	case p := <-received:
		if len(p.Events) != 1 {
			t.Fatalf("events = %+v", p.Events)
		}
		ev := p.Events[0]
		if ev.Collection != "purchases" || ev.DocID != "p1" || ev.Type != changeAdded || ev.Project != testProject {
			t.Errorf("event = %+v", ev)
		}
		if ev.Data["estado"] != "pendiente" {
			t.Errorf("data = %v", ev.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not called")
	}
}
