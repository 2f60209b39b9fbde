package core

import (
	"errors"
	"fmt"
)

var (
	// ErrLinkOffline is returned when sending over a connection that is down.
	ErrLinkOffline = errors.New("connection is offline")
	// ErrSchedulerClosed is returned when scheduling after a run was stopped.
	ErrSchedulerClosed = errors.New("scheduler is closed")
	// ErrReplicaDeparted marks deliveries to replicas removed mid-run.
	ErrReplicaDeparted = errors.New("replica departed")
)

// UnknownPeerError is returned when a replica sends to a peer it is not connected to.
type UnknownPeerError struct {
	Source string
	Peer   string
}

func (e *UnknownPeerError) Error() string {
	return fmt.Sprintf("replica %s has no connection to %s", e.Source, e.Peer)
}

// NotFoundError is returned when updating a version absent from a replica log.
type NotFoundError struct {
	Replica string
	Version VersionID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("version %d not found in log of %s", e.Version, e.Replica)
}

// MalformedTopologyError reports an unusable topology document.
type MalformedTopologyError struct {
	Reason string
	Index  int // offending node or link index, -1 when not applicable
}

func (e *MalformedTopologyError) Error() string {
	if e.Index < 0 {
		return "malformed topology: " + e.Reason
	}
	return fmt.Sprintf("malformed topology at %d: %s", e.Index, e.Reason)
}

// MalformedLogEntryError reports a validator input entry missing required fields.
type MalformedLogEntryError struct {
	Replica  string
	Position int
	Reason   string
}

func (e *MalformedLogEntryError) Error() string {
	if e.Replica == "" {
		return "malformed log entry: " + e.Reason
	}
	return fmt.Sprintf("malformed log entry %s[%d]: %s", e.Replica, e.Position, e.Reason)
}
