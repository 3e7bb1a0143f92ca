// Package persist stores scroll snapshots in Redis so a paginated list can be
// restored after a restart or picked up by another replica.
//
// Snapshots are stored as JSON under deterministic keys of the form
//
//	scroll:<namespace>:<session>
//
// with a sliding TTL. Restoring is a two step process: Load the snapshot and
// hand it to Machine.Restore, which validates it and clears in-flight flags.
//
//	store := persist.NewStore[Order](redisClient, "orders", 30*time.Minute)
//	if snap, err := store.Load(ctx, sessionID); err == nil {
//		_ = machine.Restore(snap)
//	}
package persist
