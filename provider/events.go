// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

package provider

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names the observable outcomes of proof verification.
type EventType string

const (
	EventProofAccepted EventType = "ProofAccepted"
	EventProofRejected EventType = "ProofRejected"
)

// Event is one verification outcome. Rejections carry the reason; a
// rejected round stays open and the provider remains subject to the
// liveness timeout.
type Event struct {
	Type     EventType   `json:"type"`
	Provider common.Hash `json:"provider"`
	Block    uint64      `json:"block"`
	NewRoot  common.Hash `json:"newRoot,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// EventFeed fans verification events out to subscribers. Slow
// subscribers drop events rather than block verification.
type EventFeed struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewEventFeed() *EventFeed {
	return &EventFeed{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a cancel function.
func (f *EventFeed) Subscribe(buffer int) (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	ch := make(chan Event, buffer)
	f.subs[id] = ch

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
}

// Publish delivers an event to all subscribers without blocking.
func (f *EventFeed) Publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range f.subs {
		select {
		case sub <- ev:
		default:
			log.Warnw("dropping event for slow subscriber", "type", ev.Type, "provider", ev.Provider)
		}
	}
}
