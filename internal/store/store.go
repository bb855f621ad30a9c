package store

import (
	"context"
)

// Entity is one stored record of a concrete entity type.
type Entity struct {
	Type       string
	Attributes map[string]Value
}

// ID returns the entity's id attribute.
func (e Entity) ID() string {
	if v, ok := e.Attributes["id"]; ok && v != nil {
		return v.String()
	}
	return ""
}

// Store executes compiled entity queries.
type Store interface {
	FindEntities(ctx context.Context, q EntityQuery) ([]Entity, error)
}

// SubscriptionFilter selects the changes a live subscription depends on.
type SubscriptionFilter struct {
	SubgraphID DeploymentHash `json:"subgraphId"`
	EntityType string         `json:"entityType"`
}

// ChangeOperation says what happened to an entity.
type ChangeOperation string

const (
	ChangeSet     ChangeOperation = "set"
	ChangeRemoved ChangeOperation = "removed"
)

// EntityChange is emitted by a store when an entity is written.
type EntityChange struct {
	SubgraphID DeploymentHash  `json:"subgraphId"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Operation  ChangeOperation `json:"operation"`
}

// Matches reports whether the change affects the filter.
func (f SubscriptionFilter) Matches(c EntityChange) bool {
	return f.SubgraphID == c.SubgraphID && f.EntityType == c.EntityType
}
