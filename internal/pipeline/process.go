package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rxsync/internal"
	"rxsync/internal/connectors"
	"rxsync/internal/table"
)

// SourceFetcher downloads one source location. Release is called once the
// payload has been decoded.
type SourceFetcher interface {
	Fetch(ctx context.Context, loc internal.SourceLocation) (internal.FetchedFile, error)
	Release(f internal.FetchedFile) error
}

type SnapshotStore interface {
	Read(entity internal.Entity) (*table.Table, error)
	Write(entity internal.Entity, t table.Table) error
}

// Ledger records what each run did.
type Ledger interface {
	InsertRun(row internal.RunRow) error
	InsertFetchedFile(row internal.FetchedFileRow) error
	SetMetadata(key, value string) error
}

type ProcessingService struct {
	engine *Engine
	fetch  SourceFetcher
	store  SnapshotStore
	ledger Ledger
	dates  DateRewriter
	log    *zap.Logger

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewProcessingService(engine *Engine, fetch SourceFetcher, store SnapshotStore, ledger Ledger, dates DateRewriter, log *zap.Logger) *ProcessingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProcessingService{
		engine: engine,
		fetch:  fetch,
		store:  store,
		ledger: ledger,
		dates:  dates,
		log:    log,
		locks:  map[int]*sync.Mutex{},
	}
}

type EntityResult struct {
	Entity   internal.Entity
	RunID    string
	State    internal.RunState
	Stats    Stats
	Files    []internal.FetchedFileRow
	Snapshot table.Table
	Err      error
	Duration time.Duration
}

// ProcessEntity runs one full cycle for entity: locate, fetch and decode every
// source table, merge them into the stored snapshot and persist the result.
// A table that cannot be fetched or decoded is left out; the entity fails only
// when its snapshot cannot be read or written, or its sources cannot be listed.
// Calls for the same entity run one at a time.
func (s *ProcessingService) ProcessEntity(ctx context.Context, locator connectors.SourceLocator, entity internal.Entity) (res EntityResult) {
	lock := s.entityLock(entity.ID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	res = EntityResult{Entity: entity, RunID: uuid.New().String(), State: internal.StateFetching}
	log := s.log.With(zap.String("entity", entity.Name), zap.Int("entity_id", entity.ID), zap.String("run_id", res.RunID))
	timings := map[string]float64{}

	defer func() {
		res.Duration = time.Since(start)
		timings["totalMs"] = float64(res.Duration.Milliseconds())
		s.record(log, res, timings)
	}()

	if err := ctx.Err(); err != nil {
		return s.fail(log, res, err)
	}

	log.Debug("process: state", zap.String("state", string(res.State)))
	phase := time.Now()
	locations, err := locator.Locate(ctx, entity)
	if err != nil {
		return s.fail(log, res, err)
	}
	tables, files := s.fetchAll(ctx, log, res.RunID, entity, locations)
	res.Files = files
	timings["fetchMs"] = float64(time.Since(phase).Milliseconds())

	prior, err := s.store.Read(entity)
	if err != nil {
		return s.fail(log, res, err)
	}

	phase = time.Now()
	snapshot, stats, err := s.engine.Run(entity, tables, prior)
	res.Stats = stats
	s.markExcluded(res.Files, stats.Excluded)
	timings["mergeMs"] = float64(time.Since(phase).Milliseconds())
	if err != nil {
		return s.fail(log, res, err)
	}
	stats.TablesFailed = countFailed(res.Files)
	res.Stats = stats
	res.Snapshot = snapshot

	if stats.State == internal.StateSkipped {
		res.State = internal.StateSkipped
		log.Info("process: nothing fetched, snapshot unchanged", zap.Int("locations", len(locations)))
		return res
	}

	res.State = internal.StatePersisting
	log.Debug("process: state", zap.String("state", string(res.State)))
	phase = time.Now()
	if err := s.store.Write(entity, snapshot); err != nil {
		return s.fail(log, res, err)
	}
	timings["persistMs"] = float64(time.Since(phase).Milliseconds())

	res.State = internal.StateDone
	res.Stats.State = internal.StateDone
	log.Info("process: snapshot updated",
		zap.Int("tables", stats.TablesFetched),
		zap.Int("tables_failed", stats.TablesFailed),
		zap.Int("prior_rows", stats.PriorRows),
		zap.Int("merged_rows", stats.MergedRows),
		zap.Int("new_rows", stats.NewRows),
	)
	return res
}

// fetchAll fetches and decodes every location in order. Positions in the
// returned tables follow the successful files in files.
func (s *ProcessingService) fetchAll(ctx context.Context, log *zap.Logger, runID string, entity internal.Entity, locations []internal.SourceLocation) ([]table.Table, []internal.FetchedFileRow) {
	var (
		tables []table.Table
		files  []internal.FetchedFileRow
	)
	for _, loc := range locations {
		row := internal.FetchedFileRow{RunID: runID, EntityID: entity.ID, Location: loc.URL, Status: internal.FileOK}

		t, hash, err := s.fetchOne(ctx, log, loc)
		row.Hash = hash
		if err != nil {
			row.Status = internal.FileFetchError
			row.Error = err.Error()
			log.Warn("process: table not fetched", zap.String("url", loc.URL), zap.Error(err))
			files = append(files, row)
			continue
		}

		row.Rows = t.Len()
		files = append(files, row)
		tables = append(tables, t)
	}
	return tables, files
}

func (s *ProcessingService) fetchOne(ctx context.Context, log *zap.Logger, loc internal.SourceLocation) (table.Table, string, error) {
	f, err := s.fetch.Fetch(ctx, loc)
	if err != nil {
		return table.Table{}, "", err
	}
	defer func() { _ = s.fetch.Release(f) }()

	t, err := Decode(f.Name, f.Raw, s.engine.Columns)
	if err != nil {
		return table.Table{}, f.Hash, err
	}
	t, n := s.dates.Rewrite(t)
	if n > 0 {
		log.Debug("process: dates rewritten", zap.String("url", loc.URL), zap.Int("cells", n))
	}
	return t, f.Hash, nil
}

// markExcluded flags the files whose tables the engine dropped. excluded holds
// positions among the successfully decoded files.
func (s *ProcessingService) markExcluded(files []internal.FetchedFileRow, excluded []int) {
	if len(excluded) == 0 {
		return
	}
	drop := make(map[int]struct{}, len(excluded))
	for _, i := range excluded {
		drop[i] = struct{}{}
	}
	pos := 0
	for i := range files {
		if files[i].Status != internal.FileOK {
			continue
		}
		if _, ok := drop[pos]; ok {
			files[i].Status = internal.FileSchemaMismatch
			files[i].Error = "column set differs from snapshot"
		}
		pos++
	}
}

func (s *ProcessingService) fail(log *zap.Logger, res EntityResult, err error) EntityResult {
	res.State = internal.StateFailed
	res.Stats.State = internal.StateFailed
	res.Err = err
	if internal.IsPersistError(err) {
		log.Error("process: snapshot not persisted", zap.Error(err))
	} else {
		log.Warn("process: entity failed", zap.Error(err))
	}
	return res
}

func (s *ProcessingService) record(log *zap.Logger, res EntityResult, timings map[string]float64) {
	if s.ledger == nil {
		return
	}
	row := internal.RunRow{
		RunID:      res.RunID,
		EntityID:   res.Entity.ID,
		EntityName: res.Entity.Name,
		State:      string(res.State),
		Counts:     res.Stats.Counts(),
		Timings:    timings,
	}
	if res.Err != nil {
		row.Error = res.Err.Error()
	}
	if err := s.ledger.InsertRun(row); err != nil {
		log.Warn("process: run not recorded", zap.Error(err))
	}
	for _, f := range res.Files {
		if err := s.ledger.InsertFetchedFile(f); err != nil {
			log.Warn("process: fetched file not recorded", zap.String("url", f.Location), zap.Error(err))
		}
	}
	if res.State == internal.StateDone {
		if err := s.ledger.SetMetadata(internal.LastSuccessKey(res.Entity.ID), time.Now().UTC().Format(time.RFC3339)); err != nil {
			log.Warn("process: last success not recorded", zap.Error(err))
		}
	}
}

func (s *ProcessingService) entityLock(id int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// RunAll processes entities concurrently, at most workers at a time, and
// returns one result per entity in input order. Per-entity failures stay in
// their results; a configuration error stops the remaining entities and is
// returned.
func (s *ProcessingService) RunAll(ctx context.Context, locator connectors.SourceLocator, entities []internal.Entity, workers int) ([]EntityResult, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]EntityResult, len(entities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, entity := range entities {
		g.Go(func() error {
			results[i] = s.ProcessEntity(gctx, locator, entity)
			if internal.IsConfigurationError(results[i].Err) {
				return eris.Wrapf(results[i].Err, "entity %s", entity.Name)
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

// Summarize counts results by final state.
func Summarize(results []EntityResult) map[internal.RunState]int {
	out := map[internal.RunState]int{}
	for _, r := range results {
		out[r.State]++
	}
	return out
}

func countFailed(files []internal.FetchedFileRow) int {
	n := 0
	for _, f := range files {
		if f.Status != internal.FileOK {
			n++
		}
	}
	return n
}
