package follower

import (
	"context"

	"github.com/yndnr/docmesh-go/internal/cluster/changes"
	"github.com/yndnr/docmesh-go/internal/cluster/rpc"
	"github.com/yndnr/docmesh-go/internal/core/domain"
	"github.com/yndnr/docmesh-go/internal/storage/docstore"
	"github.com/yndnr/docmesh-go/internal/telemetry/metric"
)

// HandleRollbackUpdates runs one rollback round starting at the given
// target. updates holds the leader's records for the target, including
// records left over from an earlier partial round. When a target is done
// the next persisted marker is taken up in the same round. The flag is
// false when the round abstains.
//
// cs is modified in place; callers pass a copy they own.
func (f *Follower) HandleRollbackUpdates(
	ctx context.Context,
	account domain.AccountID,
	collection domain.Collection,
	cs *changes.MergedChanges,
	updates []Update,
) (State, rpc.Response, bool) {
	for {
		log := f.log(ctx).With("account_id", account, "collection", collection.String())

		// Change-tracking-only collections hold no documents to restore.
		if collection.IsChangeTrackingOnly() {
			cs.Clear()
			updates = nil
		}

		if len(cs.Inserts) > 0 {
			inserts := cs.TakeInserts()
			if err := f.deleteDocuments(ctx, account, collection, inserts); err != nil {
				log.Error("rollback: failed to delete speculative documents",
					"count", len(inserts), "error", err)
				return f.abstainRound()
			}
			log.Debug("rollback: deleted speculative documents", "count", len(inserts))
		}

		if len(updates) > 0 {
			done, err := f.applier.ApplyRollbackUpdates(ctx, &updates)
			if err != nil {
				log.Error("rollback: failed to apply updates", "error", err)
				return f.abstainRound()
			}
			if !done {
				if err := f.store.SetRollbackChange(ctx, account, collection, cs); err != nil {
					log.Error("rollback: failed to checkpoint marker", "error", err)
					return f.abstainRound()
				}
				log.Debug("rollback: partial apply", "remaining", len(updates))
				f.metrics.RecordRollbackRound(metric.OutcomeContinue)
				return Rollback(account, collection, cs, updates), rpc.ContinueResponse(), true
			}
			cs.Updates.Clear()
			cs.Deletes.Clear()
		}

		if len(cs.Updates) > 0 || len(cs.Deletes) > 0 {
			data, err := cs.Serialize()
			if err != nil {
				log.Error("rollback: failed to serialize change set", "error", err)
				return f.abstainRound()
			}
			if err := f.store.SetRollbackChange(ctx, account, collection, cs); err != nil {
				log.Error("rollback: failed to checkpoint marker", "error", err)
				return f.abstainRound()
			}
			log.Debug("rollback: requesting updates",
				"updates", len(cs.Updates), "deletes", len(cs.Deletes))
			f.metrics.RecordRollbackRound(metric.OutcomeUpdate)
			return Rollback(account, collection, cs, nil),
				rpc.UpdateResponse(account, collection, data, true), true
		}

		if err := f.store.RemoveRollbackChange(ctx, account, collection); err != nil {
			log.Error("rollback: failed to remove marker", "error", err)
			return f.abstainRound()
		}
		log.Info("rollback: target restored")

		next, ok, err := f.store.NextRollbackChange(ctx)
		if err != nil {
			f.log(ctx).Error("rollback: failed to read next marker", "error", err)
			return f.abstainRound()
		}
		if ok {
			account, collection, cs, updates = next.AccountID, next.Collection, next.Changes, nil
			continue
		}

		last, _, err := f.store.GetLastLog(ctx)
		if err != nil {
			f.log(ctx).Error("rollback: failed to read last log", "error", err)
			return f.abstainRound()
		}
		f.metrics.RecordRollbackRound(metric.OutcomeMatch)
		return Synchronized(), rpc.MatchResponse(last), true
	}
}

func (f *Follower) deleteDocuments(ctx context.Context, account domain.AccountID, collection domain.Collection, ids changes.DocumentSet) error {
	b := docstore.NewWriteBatch(account)
	for _, id := range ids.Sorted() {
		b.DeleteDocument(collection, id)
	}
	err := f.pool.Run(ctx, func(ctx context.Context) error {
		_, err := f.store.Write(ctx, b)
		return err
	})
	if err != nil {
		return err
	}
	f.metrics.AddRollbackDocumentsDeleted(len(ids))
	return nil
}

func (f *Follower) abstainRound() (State, rpc.Response, bool) {
	f.metrics.RecordRollbackRound(metric.OutcomeAbstain)
	return State{}, rpc.Response{}, false
}
