package follower

import (
	"github.com/yndnr/docmesh-go/internal/cluster/changes"
	"github.com/yndnr/docmesh-go/internal/cluster/rpc"
	"github.com/yndnr/docmesh-go/internal/core/domain"
)

// Update restores one document to the leader's state.
type Update = rpc.Update

const (
	UpdatePut    = rpc.UpdatePut
	UpdateRemove = rpc.UpdateRemove
)

// Mode is the synchronization mode of a follower.
type Mode uint8

const (
	// ModeSynchronized means no rollback is in progress.
	ModeSynchronized Mode = iota
	// ModeRollback means a target is being rolled back.
	ModeRollback
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeRollback {
		return "rollback"
	}
	return "synchronized"
}

// State is the follower state carried between rounds. The zero value is
// Synchronized.
type State struct {
	Mode       Mode
	AccountID  domain.AccountID
	Collection domain.Collection
	Changes    *changes.MergedChanges
	// Pending holds records left over from a partial apply.
	Pending []Update
}

// Synchronized returns the synchronized state.
func Synchronized() State {
	return State{}
}

// Rollback returns a rollback state for the target.
func Rollback(account domain.AccountID, collection domain.Collection, c *changes.MergedChanges, pending []Update) State {
	return State{
		Mode:       ModeRollback,
		AccountID:  account,
		Collection: collection,
		Changes:    c,
		Pending:    pending,
	}
}

// IsRollback reports whether a rollback is in progress.
func (s State) IsRollback() bool {
	return s.Mode == ModeRollback
}

// Target returns the rolled back target.
func (s State) Target() domain.Target {
	return domain.Target{AccountID: s.AccountID, Collection: s.Collection}
}
