// Package ipc implements the kernel's message bus: a fixed-capacity
// table of per-owner mailboxes, each a ring of fixed-size messages.
// No blocking and no drop-oldest: send fails fast when the target
// mailbox is full, receive fails fast when it is empty, and callers
// retry.
package ipc

import "github.com/kernellabs/prokernel/internal/kernelerr"

// TickSource supplies the monotonic tick counter used to stamp message
// timestamps. internal/clock.Clock satisfies this.
type TickSource interface {
	Ticks() uint32
}

type noTicks struct{}

func (noTicks) Ticks() uint32 { return 0 }

// Message is a single mailbox entry. It is always value-copied between
// sender and receiver, never shared.
type Message struct {
	FromPID   uint32
	ToPID     uint32
	Timestamp uint32
	Data      []byte
}

// mailbox is a per-owner fixed-size ring of messages.
type mailbox struct {
	inUse    bool
	queueID  uint32
	ownerPID uint32
	messages []Message
	head     int
	tail     int
	count    int
}

// Stats is a point-in-time snapshot of message bus counters.
type Stats struct {
	TotalQueues   uint32
	ActiveQueues  uint32
	TotalMessages uint64
	TotalSent     uint64
	TotalReceived uint64
	TotalDropped  uint64
}

// Bus is the kernel's message bus: a fixed table of mailboxes.
type Bus struct {
	ticks       TickSource
	maxSize     int // MAX_MESSAGE_SIZE
	maxMessages int // MAX_MESSAGES_PER_QUEUE, fixed per-mailbox ring capacity
	mailboxes   []mailbox
	nextQueue   uint32
	stats       Stats
}

// New creates a Bus with room for maxQueues mailboxes, each holding up
// to maxMessages messages of at most maxMessageSize bytes.
func New(ticks TickSource, maxQueues, maxMessages, maxMessageSize int) *Bus {
	if ticks == nil {
		ticks = noTicks{}
	}
	return &Bus{
		ticks:       ticks,
		maxSize:     maxMessageSize,
		maxMessages: maxMessages,
		mailboxes:   make([]mailbox, maxQueues),
		nextQueue:   1,
		stats:       Stats{TotalQueues: uint32(maxQueues)},
	}
}

func (b *Bus) findByOwner(ownerPID uint32) *mailbox {
	for i := range b.mailboxes {
		if b.mailboxes[i].inUse && b.mailboxes[i].ownerPID == ownerPID {
			return &b.mailboxes[i]
		}
	}
	return nil
}

func (b *Bus) findByQueueID(queueID uint32) *mailbox {
	for i := range b.mailboxes {
		if b.mailboxes[i].inUse && b.mailboxes[i].queueID == queueID {
			return &b.mailboxes[i]
		}
	}
	return nil
}

func (b *Bus) findFree() *mailbox {
	for i := range b.mailboxes {
		if !b.mailboxes[i].inUse {
			return &b.mailboxes[i]
		}
	}
	return nil
}

// CreateQueue claims a free mailbox slot for ownerPID and returns its
// queue id. Queue ids start at 1; 0 is returned when the table is full
// and is never a valid id.
func (b *Bus) CreateQueue(ownerPID uint32) uint32 {
	slot := b.findFree()
	if slot == nil {
		return 0
	}
	*slot = mailbox{
		inUse:    true,
		queueID:  b.nextQueue,
		ownerPID: ownerPID,
		messages: make([]Message, b.maxMessages),
	}
	id := b.nextQueue
	b.nextQueue++
	b.stats.ActiveQueues++
	return id
}

// DestroyQueue removes queueID's mailbox, zeroing its message count and
// marking the slot free for reuse.
func (b *Bus) DestroyQueue(queueID uint32) error {
	m := b.findByQueueID(queueID)
	if m == nil {
		return kernelerr.New("ipc.DestroyQueue", kernelerr.CodeNotFound, "queue not found")
	}
	*m = mailbox{}
	b.stats.ActiveQueues--
	return nil
}

// QueueExists reports whether queueID names a live mailbox.
func (b *Bus) QueueExists(queueID uint32) bool {
	return b.findByQueueID(queueID) != nil
}

// Send enqueues data onto the mailbox owned by toPID. Fails fast (no
// blocking, no drop-oldest) when the data is invalid, no such mailbox
// exists, or the mailbox is at capacity.
func (b *Bus) Send(fromPID, toPID uint32, data []byte) error {
	if len(data) == 0 || len(data) > b.maxSize {
		return kernelerr.New("ipc.Send", kernelerr.CodeInvalidArgument, "invalid message size")
	}
	m := b.findByOwner(toPID)
	if m == nil {
		return kernelerr.NewPID("ipc.Send", toPID, kernelerr.CodeNotFound, "receiver mailbox not found")
	}
	if m.count >= len(m.messages) {
		b.stats.TotalDropped++
		return kernelerr.NewPID("ipc.Send", toPID, kernelerr.CodeResourceExhausted, "mailbox full")
	}

	payload := make([]byte, len(data))
	copy(payload, data)
	m.messages[m.tail] = Message{
		FromPID:   fromPID,
		ToPID:     toPID,
		Timestamp: b.ticks.Ticks(),
		Data:      payload,
	}
	m.tail = (m.tail + 1) % len(m.messages)
	m.count++

	b.stats.TotalSent++
	b.stats.TotalMessages++
	return nil
}

// Receive dequeues the oldest message addressed to toPID. Fails fast
// when no mailbox exists for toPID or it is empty; receive never blocks.
func (b *Bus) Receive(toPID uint32) (Message, error) {
	m := b.findByOwner(toPID)
	if m == nil {
		return Message{}, kernelerr.NewPID("ipc.Receive", toPID, kernelerr.CodeNotFound, "mailbox not found")
	}
	if m.count == 0 {
		return Message{}, kernelerr.NewPID("ipc.Receive", toPID, kernelerr.CodeNotFound, "mailbox empty")
	}

	msg := m.messages[m.head]
	m.head = (m.head + 1) % len(m.messages)
	m.count--

	b.stats.TotalReceived++
	return msg, nil
}

// Stats returns a point-in-time snapshot of message bus statistics.
func (b *Bus) Stats() Stats {
	return b.stats
}
