package usecase

import (
	"vocalwrite/internal/domain"
	"vocalwrite/internal/ports"
)

// Every input to the session loop is one of these. Events produced by
// background work carry the attempt they belong to so that late arrivals from
// an attempt that was already cleaned up can be recognised.

type startCmd struct {
	reply chan error
}

type cancelStartCmd struct {
	reply chan error
}

type callCmd struct {
	fn   func()
	done chan struct{}
}

type signedEvent struct {
	attempt uint64
	url     string
	err     error
}

type connectedEvent struct {
	attempt uint64
	conn    ports.RecognitionConn
	err     error
}

type micEvent struct {
	attempt uint64
	source  ports.AudioSource
	err     error
}

type messageEvent struct {
	attempt uint64
	event   domain.RecognitionEvent
}

type closedEvent struct {
	attempt uint64
	err     error
}

type pumpEndedEvent struct {
	attempt uint64
	source  ports.AudioSource
	err     error
}

type drainTimeoutEvent struct {
	attempt uint64
}

type taggedFrame struct {
	attempt uint64
	frame   domain.AudioFrame
}
