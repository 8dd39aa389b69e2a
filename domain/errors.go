package domain

import "errors"

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrNotMember      = errors.New("connection is not a member of room")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrCollaborator   = errors.New("execution collaborator failed")
	ErrExecSaturated  = errors.New("too many executions in flight")
)
