package gateway

import "testing"

func TestRegistryMultipleConnectionsPerRecipient(t *testing.T) {
	r := NewRegistry()
	a := &Client{recipientID: "user-1"}
	b := &Client{recipientID: "user-1"}
	c := &Client{recipientID: "user-2"}

	r.Register(a)
	r.Register(b)
	r.Register(c)

	if got := len(r.Clients("user-1")); got != 2 {
		t.Errorf("user-1 connections = %d, want 2", got)
	}
	if got := r.ConnectionCount(); got != 3 {
		t.Errorf("total connections = %d, want 3", got)
	}

	// One tab closes: the other connection keeps receiving.
	r.Unregister(a)
	if got := len(r.Clients("user-1")); got != 1 {
		t.Errorf("user-1 connections after one unregister = %d, want 1", got)
	}

	// Last connection closes: the recipient entry disappears entirely.
	r.Unregister(b)
	if got := len(r.Clients("user-1")); got != 0 {
		t.Errorf("user-1 connections after last unregister = %d, want 0", got)
	}
	if _, ok := r.byRecipient["user-1"]; ok {
		t.Error("empty recipient entry should be removed from the registry")
	}
}

func TestRegistryUnregisterUnknownClient(t *testing.T) {
	r := NewRegistry()
	r.Unregister(&Client{recipientID: "ghost"}) // must not panic
	if got := r.ConnectionCount(); got != 0 {
		t.Errorf("connections = %d, want 0", got)
	}
}

func TestRegistryForEachVisitsAllConnections(t *testing.T) {
	r := NewRegistry()
	r.Register(&Client{recipientID: "user-1"})
	r.Register(&Client{recipientID: "user-2"})

	seen := map[string]int{}
	r.ForEach(func(c *Client) { seen[c.RecipientID()]++ })

	if seen["user-1"] != 1 || seen["user-2"] != 1 {
		t.Errorf("visited = %v, want each connection once", seen)
	}
}
