package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"

	"rxsync/internal"
	"rxsync/internal/table"
	"rxsync/internal/util"
)

type Config struct {
	DBPath    string
	RawDir    string
	OutputDir string
	KeepRaw   bool

	LogLevel  string
	LogFormat string

	LogSource         string
	MSSQLDSN          string
	LogFilePattern    string
	LogTop            int
	LogFileInfoColumn int

	EntityList      string
	IntColumns      []string
	DecimalColumns  []string
	DateColumns     []string
	DateInputLayout string
	DateOutLayout   string
	DedupKeyColumns []string
	ExportXLSX      bool

	FetchTimeoutMs    int
	FetchRetries      int
	FetchRateLimitRPS int
	FetchInsecureTLS  bool

	ListenerIntervalSec int
	ListenerWorkers     int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawDir:    getEnv("RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		KeepRaw:   getEnvBool("KEEP_RAW", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		LogSource:         strings.ToLower(getEnv("LOG_SOURCE", "mssql")),
		MSSQLDSN:          getEnv("MSSQL_DSN", ""),
		LogFilePattern:    getEnv("LOG_FILE_PATTERN", "%RX_FINERR NIGHTLY%"),
		LogTop:            getEnvInt("LOG_TOP", 2),
		LogFileInfoColumn: getEnvInt("LOG_FILE_INFO_COLUMN", 3),

		EntityList:      getEnv("ENTITIES", "Ewing Pharmacy:62,Zarchy Pharmacy:224"),
		IntColumns:      getEnvList("INT_COLUMNS", "PATIENTNO,PATZIP,PATPHONE,PATMOBILENO,RXNO,QUANT,DAYS,CLASS,PRESPHONE"),
		DecimalColumns:  getEnvList("DECIMAL_COLUMNS", "PATIENTCOPAY"),
		DateColumns:     getEnvList("DATE_COLUMNS", "PATDOB"),
		DateInputLayout: getEnv("DATE_INPUT_LAYOUT", "1/2/2006 3:04:05 PM"),
		DateOutLayout:   getEnv("DATE_OUTPUT_LAYOUT", "01022006"),
		DedupKeyColumns: getEnvList("DEDUP_KEY_COLUMNS", ""),
		ExportXLSX:      getEnvBool("EXPORT_XLSX", false),

		FetchTimeoutMs:    getEnvInt("FETCH_TIMEOUT_MS", 30000),
		FetchRetries:      getEnvInt("FETCH_RETRIES", 4),
		FetchRateLimitRPS: getEnvInt("FETCH_RATE_LIMIT_RPS", 5),
		FetchInsecureTLS:  getEnvBool("FETCH_INSECURE_TLS", false),

		ListenerIntervalSec: getEnvInt("LISTENER_INTERVAL_SEC", 86400),
		ListenerWorkers:     getEnvInt("LISTENER_WORKERS", 4),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return eris.Wrapf(internal.ErrConfiguration, "missing required env var: %s", name)
	}
	return nil
}

// TypeMap builds the column type map. A column listed as both integer and
// decimal is a configuration error.
func (c Config) TypeMap() (table.TypeMap, error) {
	types := table.TypeMap{}
	for _, col := range c.IntColumns {
		types[col] = table.ColumnInteger
	}
	for _, col := range c.DecimalColumns {
		if types[col] == table.ColumnInteger {
			return nil, eris.Wrapf(internal.ErrConfiguration, "column %s is declared both integer and decimal", col)
		}
		types[col] = table.ColumnDecimal
	}
	return types, nil
}

// Entities parses ENTITIES, a comma separated list of name:id pairs.
func (c Config) Entities() ([]internal.Entity, error) {
	var out []internal.Entity
	seenName := map[string]struct{}{}
	seenID := map[int]struct{}{}
	seenSlug := map[string]string{}
	for _, pair := range strings.Split(c.EntityList, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		i := strings.LastIndex(pair, ":")
		if i <= 0 {
			return nil, eris.Wrapf(internal.ErrConfiguration, "entity %q: want name:id", pair)
		}
		name := strings.TrimSpace(pair[:i])
		id, err := strconv.Atoi(strings.TrimSpace(pair[i+1:]))
		if name == "" || err != nil {
			return nil, eris.Wrapf(internal.ErrConfiguration, "entity %q: want name:id", pair)
		}
		if _, ok := seenName[name]; ok {
			return nil, eris.Wrapf(internal.ErrConfiguration, "entity %q listed twice", name)
		}
		if _, ok := seenID[id]; ok {
			return nil, eris.Wrapf(internal.ErrConfiguration, "entity id %d listed twice", id)
		}
		slug := util.Slug(name)
		if other, ok := seenSlug[slug]; ok {
			return nil, eris.Wrapf(internal.ErrConfiguration, "entities %q and %q share snapshot files %s_data.*", other, name, slug)
		}
		seenName[name] = struct{}{}
		seenID[id] = struct{}{}
		seenSlug[slug] = name
		out = append(out, internal.Entity{Name: name, ID: id})
	}
	if len(out) == 0 {
		return nil, eris.Wrap(internal.ErrConfiguration, "no entities configured")
	}
	return out, nil
}

// Entity looks up a configured entity by name, case-insensitively.
func (c Config) Entity(name string) (internal.Entity, error) {
	entities, err := c.Entities()
	if err != nil {
		return internal.Entity{}, err
	}
	for _, e := range entities {
		if strings.EqualFold(e.Name, strings.TrimSpace(name)) {
			return e, nil
		}
	}
	return internal.Entity{}, eris.Wrapf(internal.ErrConfiguration, "unknown entity %q", name)
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

func (c Config) ListenerInterval() time.Duration {
	return time.Duration(c.ListenerIntervalSec) * time.Second
}

func (c Config) SnapshotDir() string {
	return c.OutputDir
}

func (c Config) String() string {
	dsn := "unset"
	if c.MSSQLDSN != "" {
		dsn = "set"
	}
	return fmt.Sprintf("db=%s raw=%s out=%s source=%s dsn=%s", c.DBPath, c.RawDir, c.OutputDir, c.LogSource, dsn)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, fallback), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
