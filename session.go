package keepself

import (
	"sync/atomic"
)

// Role is the part the current process plays in supervision
type Role int

const (
	// RoleHost supervises a worker, or runs unsupervised
	RoleHost Role = iota
	// RoleWorker was started by a host
	RoleWorker
)

// Role string constants
const (
	roleHostStr    = "host"
	roleWorkerStr  = "worker"
	roleUnknownStr = "unknown"
)

// String returns the string representation of the role
func (r Role) String() string {
	switch r {
	case RoleHost:
		return roleHostStr
	case RoleWorker:
		return roleWorkerStr
	default:
		return roleUnknownStr
	}
}

// processInitialized counts TryHandle calls; only the first may proceed.
var processInitialized atomic.Int32

// markInitialized claims the one initialization allowed per process
func markInitialized() error {
	if processInitialized.Add(1) != 1 {
		return ErrAlreadyInitialized
	}
	return nil
}

// Session describes the current process after TryHandle has resolved its role.
// The zero value is uninitialized and every reader reports ErrNotInitialized.
type Session struct {
	initialized bool
	role        Role
	sessionID   uint32
	parentPID   int
	features    Features
	supervised  bool

	kill *killRequest
}

func newHostSession(features Features, supervised bool) *Session {
	return &Session{
		initialized: true,
		role:        RoleHost,
		features:    features,
		supervised:  supervised,
	}
}

func newWorkerSession(id Identity) *Session {
	return &Session{
		initialized: true,
		role:        RoleWorker,
		sessionID:   id.SessionID,
		parentPID:   int(id.ParentPID),
		features:    id.Features,
		supervised:  true,
	}
}

func (s *Session) ready() bool {
	return s != nil && s.initialized
}

// Role returns whether this process is the host or a worker
func (s *Session) Role() (Role, error) {
	if !s.ready() {
		return RoleHost, ErrNotInitialized
	}
	return s.role, nil
}

// IsWorker reports whether this process was started by a host
func (s *Session) IsWorker() (bool, error) {
	role, err := s.Role()
	if err != nil {
		return false, err
	}
	return role == RoleWorker, nil
}

// SessionID returns the worker's session id. ok is false in a host, which has no session.
func (s *Session) SessionID() (id uint32, ok bool, err error) {
	if !s.ready() {
		return 0, false, ErrNotInitialized
	}
	if s.role != RoleWorker {
		return 0, false, nil
	}
	return s.sessionID, true, nil
}

// ParentPID returns the process id of the host that started this worker. ok
// is false in a host.
func (s *Session) ParentPID() (pid int, ok bool, err error) {
	if !s.ready() {
		return 0, false, ErrNotInitialized
	}
	if s.role != RoleWorker {
		return 0, false, nil
	}
	return s.parentPID, true, nil
}

// Features returns the feature flags in effect for this process
func (s *Session) Features() Features {
	if !s.ready() {
		return FeatureNone
	}
	return s.features
}

// Supervised reports whether supervision is active: false when it was switched
// off by the opt-out switch or the debugger bypass.
func (s *Session) Supervised() bool {
	return s.ready() && s.supervised
}

// RequestKill asks the host to force-kill this worker and its process tree.
// It returns true for the first successful request and false when the request
// was already made, the protocol is not armed, or this process is not a worker.
func (s *Session) RequestKill() (bool, error) {
	if !s.ready() {
		return false, ErrNotInitialized
	}
	if s.role != RoleWorker || s.kill == nil {
		return false, nil
	}
	return s.kill.request(), nil
}

// sessionCounter hands out session ids for one process
type sessionCounter struct {
	v atomic.Uint32
}

// Next returns the next session id. On overflow it continues from 2^31
// instead of 0 so late sessions never reuse the low ids of an early run.
func (c *sessionCounter) Next() uint32 {
	for {
		cur := c.v.Load()
		next := cur + 1
		if next == 0 {
			next = sessionWrapValue
		}
		if c.v.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// sessionIDs is shared by every supervisor in the process so token names never repeat
var sessionIDs sessionCounter
