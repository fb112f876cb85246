package domain

import "errors"

var (
	// ErrNodeNotFound is returned when a node id is not part of the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound is returned when an edge id is not part of the graph.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrDuplicateNode is returned when adding a node whose kind must be unique.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrConnectionRejected is returned when an edge would break a structural rule.
	ErrConnectionRejected = errors.New("connection rejected")

	// ErrInvalidFlow is returned when a serialized flow cannot be imported.
	ErrInvalidFlow = errors.New("invalid flow")

	// ErrSessionNotFound is returned when a session ID cannot be found in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when creating a session whose ID is taken.
	ErrSessionExists = errors.New("session already exists")
)
