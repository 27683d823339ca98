package internal

import "strconv"

// Entity is one independently tracked data source, e.g. a pharmacy.
type Entity struct {
	Name string
	ID   int
}

// SourceLocation points at one export file reported by the file log.
type SourceLocation struct {
	EntityID int
	LogID    string
	FileName string
	URL      string
}

// FetchedFile is the raw payload of one SourceLocation.
type FetchedFile struct {
	Location SourceLocation
	Name     string
	Raw      []byte
	Hash     string
	RawRef   string
}

type RunState string

const (
	StateFetching   RunState = "FETCHING"
	StateAssembling RunState = "ASSEMBLING"
	StateMerging    RunState = "MERGING"
	StatePersisting RunState = "PERSISTING"
	StateDone       RunState = "DONE"
	StateSkipped    RunState = "SKIPPED"
	StateFailed     RunState = "FAILED"
)

type FileStatus string

const (
	FileOK             FileStatus = "ok"
	FileFetchError     FileStatus = "fetch_error"
	FileSchemaMismatch FileStatus = "schema_mismatch"
)

// FileLogRow is one row of the local file log, mirroring FileProcessLog.
type FileLogRow struct {
	ID       int
	EntityID int
	FileName string
	FileInfo string
	LoggedAt string
}

type RunRow struct {
	ID         int
	RunID      string
	EntityID   int
	EntityName string
	State      string
	Counts     map[string]int
	Timings    map[string]float64
	Error      string
	CreatedAt  string
}

type FetchedFileRow struct {
	RunID    string
	EntityID int
	Location string
	Hash     string
	Rows     int
	Status   FileStatus
	Error    string
}

// LastSuccessKey is the metadata key holding an entity's last successful run.
func LastSuccessKey(entityID int) string {
	return "entity." + strconv.Itoa(entityID) + ".last_success"
}
