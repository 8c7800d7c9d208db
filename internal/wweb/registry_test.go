package wweb

import (
	"testing"

	"relaybot/internal/domain"
)

func TestRegistry_LastWriterWins(t *testing.T) {
	r := NewRegistry()
	if r.Active() != nil {
		t.Fatal("fresh registry should be empty")
	}

	first := &fakeSession{receipt: domain.SendReceipt{MessageID: "a"}}
	second := &fakeSession{receipt: domain.SendReceipt{MessageID: "b"}}

	r.SetActive(first)
	if r.Active() != domain.ActiveSession(first) {
		t.Error("first session should be active")
	}

	// Overwrite replaces without closing the prior holder.
	r.SetActive(second)
	if r.Active() != domain.ActiveSession(second) {
		t.Error("second session should have replaced the first")
	}

	r.SetActive(nil)
	if r.Active() != nil {
		t.Error("slot should be cleared")
	}
}
