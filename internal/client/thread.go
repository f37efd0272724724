/*
Package client is the dmchat client core: the websocket event source, the HTTP API and
the reconciliation of optimistic sends with server truth.

A Thread is the single source of truth for the visible messages of one conversation. It
is keyed by message id; temporary ids cover optimistic entries until the server confirms
them. Entries keep the position at which they were first seen.
*/
package client

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"dmchat/internal/app/message"
)

// TempIDPrefix marks ids generated locally for optimistic entries.
const TempIDPrefix = "temp-"

// Status is the lifecycle of a visible entry.
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Entry is one visible message. TempID is set while the entry is or was optimistic.
type Entry struct {
	message.Message

	TempID string
	Status Status
}

type slot struct {
	Entry
	seq uint64
}

// Thread holds the visible messages between Me and Peer.
type Thread struct {
	Me   string
	Peer string

	mu      sync.Mutex
	entries map[string]*slot
	seq     uint64
	tempSeq uint64
	now     func() time.Time
}

// NewThread returns an empty thread between me and peer.
func NewThread(me, peer string) *Thread {
	return &Thread{
		Me:      me,
		Peer:    peer,
		entries: make(map[string]*slot),
		now:     time.Now,
	}
}

func (t *Thread) nextSeq() uint64 {
	t.seq++
	return t.seq
}

// AddOptimistic shows a locally authored message before the server has seen it.
func (t *Thread) AddOptimistic(text, image string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tempSeq++
	tempID := TempIDPrefix + strconv.FormatUint(t.tempSeq, 10)

	s := &slot{
		Entry: Entry{
			Message: message.Message{
				ID:         tempID,
				SenderID:   t.Me,
				ReceiverID: t.Peer,
				Text:       text,
				Image:      image,
				CreatedAt:  t.now().UTC(),
			},
			TempID: tempID,
			Status: StatusSending,
		},
		seq: t.nextSeq(),
	}
	t.entries[tempID] = s

	return s.Entry
}

// Confirm replaces the optimistic entry tempID with the persisted msg. If msg already
// arrived through the push channel, the entry seen first keeps its content, takes the
// earlier of the two positions and is marked sent.
func (t *Thread) Confirm(tempID string, msg message.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending, hadPending := t.entries[tempID]
	delete(t.entries, tempID)

	if existing, ok := t.entries[msg.ID]; ok {
		existing.Status = StatusSent
		existing.TempID = tempID
		if hadPending && pending.seq < existing.seq {
			existing.seq = pending.seq
		}
		return
	}

	seq := t.seq + 1
	if hadPending {
		seq = pending.seq
	} else {
		t.seq = seq
	}

	t.entries[msg.ID] = &slot{
		Entry: Entry{Message: msg, TempID: tempID, Status: StatusSent},
		seq:   seq,
	}
}

// Fail marks the optimistic entry tempID as failed. Failed entries are never retried.
func (t *Thread) Fail(tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.entries[tempID]; ok && s.Status == StatusSending {
		s.Status = StatusFailed
	}
}

// Belongs reports whether msg is part of this conversation.
func (t *Thread) Belongs(msg message.Message) bool {
	return msg.Between(t.Me, t.Peer)
}

// Merge appends a pushed message unless its id is already visible. It reports whether
// the message was added.
func (t *Thread) Merge(msg message.Message) bool {
	if !t.Belongs(msg) {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[msg.ID]; ok {
		return false
	}

	t.entries[msg.ID] = &slot{
		Entry: Entry{Message: msg, Status: StatusSent},
		seq:   t.nextSeq(),
	}
	return true
}

// Reset replaces every confirmed entry with msgs, in the given order. Entries still
// sending or failed stay visible after them.
func (t *Thread) Reset(msgs []message.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetLocked(msgs)
}

// Refresh is Reset for a thread that may already hold pushed messages: confirmed entries
// missing from msgs stay visible after everything else.
func (t *Thread) Refresh(msgs []message.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pushed []*slot
	for _, s := range t.entries {
		if s.Status == StatusSent {
			pushed = append(pushed, s)
		}
	}
	sort.Slice(pushed, func(i, j int) bool { return pushed[i].seq < pushed[j].seq })

	t.resetLocked(msgs)

	for _, s := range pushed {
		if _, ok := t.entries[s.ID]; ok {
			continue
		}
		s.seq = t.nextSeq()
		t.entries[s.ID] = s
	}
}

func (t *Thread) resetLocked(msgs []message.Message) {
	var kept []*slot
	for _, s := range t.entries {
		if s.Status != StatusSent {
			kept = append(kept, s)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].seq < kept[j].seq })

	t.entries = make(map[string]*slot, len(msgs)+len(kept))
	t.seq = 0

	for _, msg := range msgs {
		if _, dup := t.entries[msg.ID]; dup {
			continue
		}
		t.entries[msg.ID] = &slot{
			Entry: Entry{Message: msg, Status: StatusSent},
			seq:   t.nextSeq(),
		}
	}

	for _, s := range kept {
		s.seq = t.nextSeq()
		t.entries[s.ID] = s
	}
}

// Remove drops the entry with the given id, temporary or persisted.
func (t *Thread) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[id]; !ok {
		return false
	}
	delete(t.entries, id)
	return true
}

// Visible returns the entries in display order.
func (t *Thread) Visible() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	slots := make([]*slot, 0, len(t.entries))
	for _, s := range t.entries {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].seq < slots[j].seq })

	out := make([]Entry, len(slots))
	for i, s := range slots {
		out[i] = s.Entry
	}
	return out
}

// Len returns the number of visible entries.
func (t *Thread) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}
