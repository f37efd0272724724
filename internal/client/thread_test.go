package client

import (
	"testing"
	"time"

	"dmchat/internal/app/message"
)

func confirmed(id, from, to, text string) message.Message {
	return message.Message{ID: id, SenderID: from, ReceiverID: to, Text: text, CreatedAt: time.Unix(1700000000, 0).UTC()}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestThread_ConfirmReplacesOptimistic(t *testing.T) {
	th := NewThread("me", "peer")
	th.tempSeq = 122

	pending := th.AddOptimistic("hello", "")
	if pending.TempID != "temp-123" || pending.Status != StatusSending {
		t.Fatalf("AddOptimistic() = %s/%s, want temp-123/sending", pending.TempID, pending.Status)
	}

	th.Confirm("temp-123", confirmed("m1", "me", "peer", "hello"))
	th.Merge(confirmed("m1", "me", "peer", "hello"))

	visible := th.Visible()
	if len(visible) != 1 || visible[0].ID != "m1" || visible[0].Status != StatusSent {
		t.Errorf("Visible() = %+v, want only m1 as sent", visible)
	}
}

func TestThread_PushBeforeConfirm(t *testing.T) {
	th := NewThread("me", "peer")
	th.tempSeq = 122

	th.Merge(confirmed("p0", "peer", "me", "earlier"))
	th.AddOptimistic("hello", "")
	th.Merge(confirmed("p1", "peer", "me", "reply"))

	// m1 arrives on the push channel before the HTTP response resolves.
	if !th.Merge(confirmed("m1", "me", "peer", "hello")) {
		t.Fatal("Merge(m1) = false, want true")
	}
	th.Confirm("temp-123", confirmed("m1", "me", "peer", "hello (server copy)"))

	visible := th.Visible()
	if got, want := ids(visible), []string{"p0", "m1", "p1"}; !equal(got, want) {
		t.Fatalf("Visible() ids = %v, want %v", got, want)
	}

	m1 := visible[1]
	if m1.Status != StatusSent {
		t.Errorf("m1 status = %s, want sent", m1.Status)
	}
	if m1.Text != "hello" {
		t.Errorf("m1 text = %q, want the first-seen content", m1.Text)
	}
}

func TestThread_FailKeepsEntry(t *testing.T) {
	th := NewThread("me", "peer")
	pending := th.AddOptimistic("hello", "")

	th.Fail(pending.TempID)

	visible := th.Visible()
	if len(visible) != 1 || visible[0].Status != StatusFailed {
		t.Fatalf("Visible() = %+v, want one failed entry", visible)
	}

	// Failing again changes nothing.
	th.Fail(pending.TempID)
	if th.Visible()[0].Status != StatusFailed {
		t.Error("second Fail changed status")
	}
}

func TestThread_MergeIgnoresDuplicatesAndOtherConversations(t *testing.T) {
	th := NewThread("me", "peer")

	if !th.Merge(confirmed("m1", "peer", "me", "hi")) {
		t.Fatal("first Merge(m1) = false")
	}
	if th.Merge(confirmed("m1", "peer", "me", "hi")) {
		t.Error("second Merge(m1) = true, want duplicate to be ignored")
	}
	if th.Merge(confirmed("m2", "stranger", "me", "hey")) {
		t.Error("Merge accepted a message from another conversation")
	}
	if got := th.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestThread_ResetKeepsPendingEntries(t *testing.T) {
	th := NewThread("me", "peer")

	th.Merge(confirmed("stale", "peer", "me", "deleted on the server"))
	sending := th.AddOptimistic("in flight", "")
	failed := th.AddOptimistic("broken", "")
	th.Fail(failed.TempID)

	th.Reset([]message.Message{
		confirmed("a", "me", "peer", "one"),
		confirmed("b", "peer", "me", "two"),
		confirmed("b", "peer", "me", "two"),
	})

	if got, want := ids(th.Visible()), []string{"a", "b", sending.TempID, failed.TempID}; !equal(got, want) {
		t.Errorf("Visible() ids = %v, want %v", got, want)
	}

	th.Confirm(sending.TempID, confirmed("c", "me", "peer", "in flight"))
	if got, want := ids(th.Visible()), []string{"a", "b", "c", failed.TempID}; !equal(got, want) {
		t.Errorf("after Confirm ids = %v, want %v", got, want)
	}
}

func TestThread_RefreshKeepsPushesMissingFromFetch(t *testing.T) {
	th := NewThread("me", "peer")

	th.Merge(confirmed("m2", "peer", "me", "arrived during the fetch"))
	th.Merge(confirmed("m1", "me", "peer", "also fetched"))
	sending := th.AddOptimistic("in flight", "")

	th.Refresh([]message.Message{
		confirmed("m0", "peer", "me", "old"),
		confirmed("m1", "me", "peer", "also fetched"),
	})

	if got, want := ids(th.Visible()), []string{"m0", "m1", sending.TempID, "m2"}; !equal(got, want) {
		t.Errorf("Visible() ids = %v, want %v", got, want)
	}
}

func TestThread_Remove(t *testing.T) {
	th := NewThread("me", "peer")
	th.Merge(confirmed("m1", "peer", "me", "hi"))

	if !th.Remove("m1") {
		t.Fatal("Remove(m1) = false")
	}
	if th.Remove("m1") {
		t.Error("Remove(m1) twice = true")
	}
	if th.Len() != 0 {
		t.Errorf("Len() = %d, want 0", th.Len())
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
