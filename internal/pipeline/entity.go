package pipeline

import (
	"go.uber.org/zap"

	"rxsync/internal"
	"rxsync/internal/table"
)

// Stats reports what one entity run did at each stage.
type Stats struct {
	State         internal.RunState
	TablesFetched int
	TablesFailed  int
	FetchedRows   int
	BatchRows     int
	BatchDropped  int
	PriorRows     int
	MergedRows    int
	MergeDropped  int
	NewRows       int
	Anomalies     int

	// Excluded lists the positions of fetched tables dropped for their columns.
	Excluded []int
}

// Counts flattens the stats for the run ledger.
func (s Stats) Counts() map[string]int {
	return map[string]int{
		"tablesFetched": s.TablesFetched,
		"tablesFailed":  s.TablesFailed,
		"fetchedRows":   s.FetchedRows,
		"batchRows":     s.BatchRows,
		"batchDropped":  s.BatchDropped,
		"priorRows":     s.PriorRows,
		"mergedRows":    s.MergedRows,
		"mergeDropped":  s.MergeDropped,
		"newRows":       s.NewRows,
		"anomalies":     s.Anomalies,
	}
}

// Engine is the per-entity merge core: assemble the fetched tables, merge them
// into the prior snapshot and coerce the result. It performs no I/O.
type Engine struct {
	Types     table.TypeMap
	Key       KeyPolicy
	Retention RetentionPolicy
	// Columns, when set, is the column set every fetched table must carry.
	Columns []string

	log *zap.Logger
}

func NewEngine(types table.TypeMap, key KeyPolicy, retention RetentionPolicy, log *zap.Logger) *Engine {
	if key == nil {
		key = FullRowKey{}
	}
	if retention == nil {
		retention = RetainAll{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{Types: types, Key: key, Retention: retention, log: log}
}

// Run computes the new snapshot for entity. fetched holds the tables that were
// produced successfully, in concatenation order; prior is nil on the first run.
//
// Tables whose column set differs from the expected one are dropped and counted
// as failed. With no usable tables the prior snapshot is returned unchanged (an
// empty table when there is none) and the state is SKIPPED.
func (e *Engine) Run(entity internal.Entity, fetched []table.Table, prior *table.Table) (table.Table, Stats, error) {
	log := e.log.With(zap.String("entity", entity.Name), zap.Int("entity_id", entity.ID))
	stats := Stats{State: internal.StateFetching}
	if prior != nil {
		stats.PriorRows = prior.Len()
	}

	usable := e.filterSchema(log, fetched, prior, &stats)
	stats.TablesFetched = len(usable)
	if len(usable) == 0 {
		stats.State = internal.StateSkipped
		stats.MergedRows = stats.PriorRows
		log.Debug("no tables to merge", zap.String("state", string(stats.State)))
		if prior == nil {
			return table.New(e.Columns), stats, nil
		}
		return *prior, stats, nil
	}

	stats.State = internal.StateAssembling
	log.Debug("state", zap.String("state", string(stats.State)), zap.Int("tables", len(usable)))
	batch, err := Assemble(usable, e.Key)
	if err != nil {
		return table.Table{}, stats, err
	}
	stats.FetchedRows = batch.Fetched
	stats.BatchRows = batch.Table.Len()
	stats.BatchDropped = batch.Dropped

	stats.State = internal.StateMerging
	log.Debug("state", zap.String("state", string(stats.State)), zap.Int("batch_rows", stats.BatchRows))
	merged, err := Merge(prior, batch.Table, MergeOptions{Types: e.Types, Key: e.Key, Retention: e.Retention})
	if err != nil {
		return table.Table{}, stats, err
	}
	stats.MergedRows = merged.Snapshot.Len()
	stats.MergeDropped = merged.Dropped
	stats.NewRows = stats.MergedRows - stats.PriorRows
	stats.Anomalies = merged.BatchReport.AnomalyCount()
	if stats.Anomalies > 0 {
		log.Info("numeric values kept as text",
			zap.Int("count", stats.Anomalies),
			zap.Any("samples", merged.BatchReport.Samples),
		)
	}

	stats.State = internal.StatePersisting
	return merged.Snapshot, stats, nil
}

func (e *Engine) filterSchema(log *zap.Logger, fetched []table.Table, prior *table.Table, stats *Stats) []table.Table {
	var ref []string
	switch {
	case len(e.Columns) > 0:
		ref = e.Columns
	case prior != nil && len(prior.Columns) > 0:
		ref = prior.Columns
	case len(fetched) > 0:
		ref = fetched[0].Columns
	}

	refTable := table.New(ref)
	usable := make([]table.Table, 0, len(fetched))
	for i, t := range fetched {
		if !t.SameColumnSet(refTable) {
			stats.TablesFailed++
			stats.Excluded = append(stats.Excluded, i)
			log.Warn("table excluded: column set differs",
				zap.Int("table", i),
				zap.Strings("columns", t.Columns),
				zap.Strings("expected", ref),
			)
			continue
		}
		usable = append(usable, t)
	}
	return usable
}
