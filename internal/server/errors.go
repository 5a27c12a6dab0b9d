package server

import "fmt"

// BindError reports that a listening endpoint could not be bound.
type BindError struct {
	Role Role
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("binding %s endpoint on %s: %v", e.Role, e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// TransportError reports that a push session lost its connection. It only
// affects that one session.
type TransportError struct {
	Session string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("push session %s: %v", e.Session, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
