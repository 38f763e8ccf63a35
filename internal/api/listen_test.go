package api

import "testing"

func TestHubRoutesByCollection(t *testing.T) {
	h := NewHub()
	roles, cancelRoles := h.Subscribe("p", "roles")
	defer cancelRoles()
	other, cancelOther := h.Subscribe("q", "roles")
	defer cancelOther()

	h.Publish("p", changeEvent{Type: changeAdded, Collection: "roles", Doc: documentJSON{ID: "r1"}})
	h.Publish("p", changeEvent{Type: changeAdded, Collection: "services", Doc: documentJSON{ID: "s1"}})

	select {
	case ev := <-roles:
		if ev.Doc.ID != "r1" {
			t.Errorf("got %+v", ev)
		}
	default:
		t.Fatal("roles listener got nothing")
	}
	select {
	case ev := <-roles:
		t.Errorf("unexpected second event %+v", ev)
	case ev := <-other:
		t.Errorf("other project got %+v", ev)
	default:
	}

	if n := h.CountProject("p"); n != 1 {
		t.Errorf("CountProject(p) = %d", n)
	}
}

func TestHubDropsSlowListener(t *testing.T) {
	h := NewHub()
	drops := 0
	h.onDrop = func() { drops++ }

	ch, cancel := h.Subscribe("p", "roles")
	for i := 0; i <= listenBuffer; i++ {
		h.Publish("p", changeEvent{Type: changeModified, Collection: "roles"})
	}
	if drops != 1 {
		t.Errorf("drops = %d", drops)
	}
	if h.Count() != 0 {
		t.Errorf("dropped listener still registered")
	}

	n := 0
	for range ch {
		n++
	}
	if n != listenBuffer {
		t.Errorf("buffered events = %d, want %d", n, listenBuffer)
	}
	cancel() // after a drop cancel is a no-op
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("p", "roles")
	defer cancel()
	h.Close()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	late, lateCancel := h.Subscribe("p", "roles")
	defer lateCancel()
	if _, ok := <-late; ok {
		t.Fatal("subscription after close should be closed")
	}
}
