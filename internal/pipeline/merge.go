package pipeline

import (
	"github.com/rotisserie/eris"

	"rxsync/internal"
	"rxsync/internal/table"
)

type MergeOptions struct {
	Types     table.TypeMap
	Key       KeyPolicy
	Retention RetentionPolicy
}

type MergeResult struct {
	Snapshot table.Table
	Prior    int
	Batch    int
	Combined int
	Dropped  int
	// Report describes the final coercion pass over the whole snapshot.
	Report CoercionReport
	// BatchReport describes the batch records alone.
	BatchReport CoercionReport
}

// Merge combines the prior snapshot (nil on the first run) with a batch.
//
// The prior snapshot comes first and the batch second, so under keep-last
// deduplication a batch record wins over an equal prior record. Records are
// compared in canonical form: a persisted 12.5 and a freshly fetched "12.50"
// are the same cell. The deduplicated result passes through the retention
// policy and is coerced once more before it is returned.
func Merge(prior *table.Table, batch table.Table, opts MergeOptions) (MergeResult, error) {
	if opts.Key == nil {
		opts.Key = FullRowKey{}
	}
	if opts.Retention == nil {
		opts.Retention = RetainAll{}
	}

	var res MergeResult
	res.Batch = batch.Len()

	var combined table.Table
	switch {
	case prior == nil:
		combined, res.BatchReport = Coerce(batch, opts.Types)
	default:
		res.Prior = prior.Len()
		combined, _ = Coerce(*prior, opts.Types)
		if len(batch.Columns) > 0 || batch.Len() > 0 {
			aligned, err := batch.Align(prior.Columns)
			if err != nil {
				return MergeResult{}, eris.Wrapf(internal.ErrSchemaMismatch, "batch vs snapshot: %v", err)
			}
			var coerced table.Table
			coerced, res.BatchReport = Coerce(aligned, opts.Types)
			combined.Rows = append(combined.Rows, coerced.Rows...)
		}
	}
	res.Combined = combined.Len()
	if len(combined.Columns) == 0 {
		res.Snapshot = combined
		return res, nil
	}

	key, err := opts.Key.Bind(combined.Columns)
	if err != nil {
		return MergeResult{}, eris.Wrapf(internal.ErrConfiguration, "dedup key: %v", err)
	}
	deduped, dropped := DedupKeepLast(combined, key)
	res.Dropped = dropped

	retained := opts.Retention.Retain(deduped)
	res.Snapshot, res.Report = Coerce(retained, opts.Types)
	return res, nil
}
