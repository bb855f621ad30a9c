package events

import "time"

// GraphQLStart is emitted before executing a GraphQL operation.
type GraphQLStart struct {
	Query         string
	OperationName string
	OperationType string
}

// GraphQLFinish is emitted after executing a GraphQL operation.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Errors        []error
	Cached        bool
	Duration      time.Duration
}

// PermitAcquired is emitted once a request has been admitted.
type PermitAcquired struct {
	Wait time.Duration
	// Queued is set when no permit was free on arrival.
	Queued bool
}

// SubscriptionOpened is emitted when a live subscription starts watching
// entity changes.
type SubscriptionOpened struct {
	ID       string
	Field    string
	Watching int
}

// SubscriptionClosed is emitted when a live subscription ends.
type SubscriptionClosed struct {
	ID      string
	Field   string
	Updates int
}
