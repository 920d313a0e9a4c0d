package stage

import (
	"sync"
	"sync/atomic"
)

type Role int

const (
	Primary Role = iota
	Secondary
)

// RoleFor returns the role playlist entry i plays in.
func RoleFor(i int) Role {
	return Role(i % 2)
}

func (r Role) Opposite() Role {
	return 1 - r
}

func (r Role) String() string {
	if r == Secondary {
		return "secondary"
	}
	return "primary"
}

type Kind int

const (
	Reader Kind = iota
	Decoder
	Renderer

	NumKinds = 3
)

func (k Kind) String() string {
	switch k {
	case Reader:
		return "reader"
	case Decoder:
		return "decoder"
	case Renderer:
		return "renderer"
	}
	return "unknown"
}

type EventType int

const (
	EventFinished EventType = iota
	EventFirstFrame
)

func (t EventType) String() string {
	if t == EventFirstFrame {
		return "first-frame"
	}
	return "finished"
}

type Event struct {
	// ID identifies the stage instance that posted the event.
	ID   uint64
	Role Role
	Kind Kind
	Type EventType
}

type Observer interface {
	// Notify must not block.
	Notify(Event)
}

var nextID atomic.Uint64

// Subject is embedded by every pipeline stage.
type Subject struct {
	id   uint64
	role Role
	kind Kind

	mutex     sync.Mutex
	observers []Observer
	finished  bool
}

func NewSubject(role Role, kind Kind) *Subject {
	return &Subject{
		id:   nextID.Add(1),
		role: role,
		kind: kind,
	}
}

func (s *Subject) ID() uint64 {
	return s.id
}

func (s *Subject) Role() Role {
	return s.role
}

func (s *Subject) Kind() Kind {
	return s.kind
}

func (s *Subject) Subscribe(o Observer) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, cur := range s.observers {
		if cur == o {
			return
		}
	}
	s.observers = append(s.observers, o)
}

func (s *Subject) Unsubscribe(o Observer) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for i, cur := range s.observers {
		if cur == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *Subject) Post(t EventType) {
	s.mutex.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.mutex.Unlock()

	e := Event{ID: s.id, Role: s.role, Kind: s.kind, Type: t}
	for _, o := range observers {
		o.Notify(e)
	}
}

// NotifyFinished posts EventFinished once.
func (s *Subject) NotifyFinished() {
	s.mutex.Lock()
	if s.finished {
		s.mutex.Unlock()
		return
	}
	s.finished = true
	s.mutex.Unlock()

	s.Post(EventFinished)
}

func (s *Subject) IsFinished() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.finished
}
