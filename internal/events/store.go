package events

import "time"

// QueryBuilt is emitted after field arguments are compiled into an entity
// query. Err is set when compilation failed.
type QueryBuilt struct {
	SubgraphID  string
	EntityTypes []string
	Err         error
}

// StoreQueryStart is emitted before an entity query is sent to the store.
type StoreQueryStart struct {
	SubgraphID  string
	EntityTypes []string
}

// StoreQueryFinish is emitted after the store answered an entity query.
type StoreQueryFinish struct {
	SubgraphID  string
	EntityTypes []string
	Entities    int
	Err         error
	Duration    time.Duration
}
