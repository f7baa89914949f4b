// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"fmt"
	"sync"
	"time"

	"github.com/devblok/framer/src/gfx"
)

// Kind is the kind of an observable device action.
type Kind int

// Event kinds
const (
	EventWrite Kind = iota
	EventSubmit
	EventCopy
	EventDraw
	EventFenceWait
	EventFenceReset
	EventFenceSignal
	EventAcquire
	EventPresent
	EventRelease
	EventWaitIdle
)

var kindNames = [...]string{
	"write", "submit", "copy", "draw", "fence-wait", "fence-reset",
	"fence-signal", "acquire", "present", "release", "wait-idle",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Event is one action recorded by the device, in the order it happened.
type Event struct {
	Seq    int
	Kind   Kind
	Object string
	Index  uint32
	Size   int
	Time   time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("%d %s %s index=%d size=%d", e.Seq, e.Kind, e.Object, e.Index, e.Size)
}

// Wait is a semaphore a submission waits on and the stage the wait
// applies to.
type Wait struct {
	Semaphore string
	Stage     gfx.Stage
}

// Submission is the synchronisation a command submission was made with.
// Seq is the sequence number of its submit event.
type Submission struct {
	Seq      int
	Queue    string
	Wait     []Wait
	Signal   []string
	Fence    string
	Commands int
}

type eventLog struct {
	mu          sync.Mutex
	events      []Event
	submissions []Submission
}

func (l *eventLog) add(kind Kind, object string, index uint32, size int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Event{
		Seq:    len(l.events),
		Kind:   kind,
		Object: object,
		Index:  index,
		Size:   size,
		Time:   time.Now(),
	})
}

// submit logs the submit event of s and keeps s alongside it.
func (l *eventLog) submit(s Submission) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.Seq = len(l.events)
	l.events = append(l.events, Event{
		Seq:    s.Seq,
		Kind:   EventSubmit,
		Object: s.Queue,
		Size:   s.Commands,
		Time:   time.Now(),
	})
	l.submissions = append(l.submissions, s)
}

func (l *eventLog) submitted() []Submission {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Submission(nil), l.submissions...)
}

func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// Filter returns the events of the given kinds, keeping their order.
func Filter(events []Event, kinds ...Kind) []Event {
	var out []Event
	for _, e := range events {
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
