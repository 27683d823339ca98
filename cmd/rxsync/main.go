package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rxsync/internal"
	"rxsync/internal/config"
	"rxsync/internal/connectors"
	"rxsync/internal/connectors/httpfetch"
	"rxsync/internal/connectors/localfs"
	"rxsync/internal/connectors/mssql"
	"rxsync/internal/listener"
	"rxsync/internal/logging"
	"rxsync/internal/pipeline"
	"rxsync/internal/storage"
	"rxsync/internal/util"
)

type app struct {
	cfg config.Config
	db  *storage.DB
	log *zap.Logger
}

func main() {
	cfg, err := config.Load()
	must(err)

	log, err := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = log.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	a := &app{cfg: cfg, db: db, log: log}
	root := &cobra.Command{
		Use:           "rxsync",
		Short:         "Merge nightly pharmacy prescription exports into per-pharmacy snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		a.runCommand(),
		a.listenCommand(),
		a.exportCommand(),
		a.lookupCommand(),
		a.logAddCommand(),
		a.runsCommand(),
	)
	if err := root.ExecuteContext(context.Background()); err != nil {
		_ = log.Sync()
		_ = db.Close()
		must(err)
	}
}

func (a *app) runCommand() *cobra.Command {
	var entityName string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every configured entity once",
		RunE: func(c *cobra.Command, args []string) error {
			entities, err := a.entities(entityName)
			if err != nil {
				return err
			}
			proc, err := a.processor()
			if err != nil {
				return err
			}
			svc := listener.NewService(proc, a.scope(), entities, a.cfg.ListenerWorkers, a.cfg.ListenerInterval(), a.log)
			results, err := svc.RunCycle(c.Context())
			if err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				fmt.Printf("entity=%q state=%s rows=%d new=%d tables=%d failed_tables=%d run=%s\n",
					r.Entity.Name, r.State, r.Stats.MergedRows, r.Stats.NewRows, r.Stats.TablesFetched, r.Stats.TablesFailed, r.RunID)
				if r.Err != nil {
					failed++
					fmt.Fprintf(os.Stderr, "  %s: %v\n", r.Entity.Name, r.Err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d entities failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entityName, "entity", "", "process only this entity")
	return cmd
}

func (a *app) listenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Process every entity on a fixed interval until interrupted",
		RunE: func(c *cobra.Command, args []string) error {
			entities, err := a.cfg.Entities()
			if err != nil {
				return err
			}
			proc, err := a.processor()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a.log.Info("listener: started", zap.Int("entities", len(entities)), zap.Duration("interval", a.cfg.ListenerInterval()))
			return listener.NewService(proc, a.scope(), entities, a.cfg.ListenerWorkers, a.cfg.ListenerInterval(), a.log).Run(ctx)
		},
	}
}

func (a *app) exportCommand() *cobra.Command {
	var entityName, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an entity's current snapshot to an XLSX file",
		RunE: func(c *cobra.Command, args []string) error {
			if strings.TrimSpace(entityName) == "" {
				return fmt.Errorf("--entity is required")
			}
			entity, err := a.cfg.Entity(entityName)
			if err != nil {
				return err
			}
			snap, err := storage.NewSnapshotStore(a.cfg.SnapshotDir(), false).Read(entity)
			if err != nil {
				return err
			}
			if snap == nil {
				return fmt.Errorf("no snapshot for %s", entity.Name)
			}
			types, err := a.cfg.TypeMap()
			if err != nil {
				return err
			}
			typed, _ := pipeline.Coerce(*snap, types)

			if strings.TrimSpace(out) == "" {
				out = filepath.Join(a.cfg.OutputDir, "exports", util.Slug(entity.Name)+"_data.xlsx")
			}
			if err := pipeline.WriteXLSX(typed, out); err != nil {
				return err
			}
			fmt.Printf("exported %d rows to %s\n", typed.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&entityName, "entity", "", "entity name")
	cmd.Flags().StringVar(&out, "out", "", "output xlsx path")
	return cmd
}

func (a *app) lookupCommand() *cobra.Command {
	var entityName string
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Print the source locations the file log reports for an entity",
		RunE: func(c *cobra.Command, args []string) error {
			entities, err := a.entities(entityName)
			if err != nil {
				return err
			}
			return a.scope()(c.Context(), func(loc connectors.SourceLocator) error {
				for _, entity := range entities {
					locations, err := loc.Locate(c.Context(), entity)
					if err != nil {
						return err
					}
					fmt.Printf("%s (%d): %d location(s)\n", entity.Name, entity.ID, len(locations))
					for _, l := range locations {
						fmt.Printf("  log=%s file=%q url=%s\n", l.LogID, l.FileName, l.URL)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&entityName, "entity", "", "only this entity")
	return cmd
}

func (a *app) logAddCommand() *cobra.Command {
	var (
		entityID           int
		fileName, fileInfo string
	)
	cmd := &cobra.Command{
		Use:   "log:add",
		Short: "Add a row to the local file log used when LOG_SOURCE=sqlite",
		RunE: func(c *cobra.Command, args []string) error {
			if entityID == 0 || strings.TrimSpace(fileName) == "" || strings.TrimSpace(fileInfo) == "" {
				return fmt.Errorf("--entity-id --file-name --file-info are required")
			}
			if _, ok := connectors.URLFromFileInfo(fileInfo); !ok {
				return fmt.Errorf("--file-info must carry a url as its second '|' segment")
			}
			id, err := a.db.AddFileLog(entityID, fileName, fileInfo)
			if err != nil {
				return err
			}
			fmt.Printf("file log row %d added\n", id)
			return nil
		},
	}
	cmd.Flags().IntVar(&entityID, "entity-id", 0, "entity id")
	cmd.Flags().StringVar(&fileName, "file-name", "", "file name, matched against LOG_FILE_PATTERN")
	cmd.Flags().StringVar(&fileInfo, "file-info", "", "file info, e.g. 'nightly|https://host/export.csv'")
	return cmd
}

func (a *app) runsCommand() *cobra.Command {
	var (
		entityID int
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs from the ledger",
		RunE: func(c *cobra.Command, args []string) error {
			runs, err := a.db.ListRuns(entityID, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tENTITY\tSTATE\tROWS\tNEW\tRUN\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n", r.CreatedAt, r.EntityName, r.State, r.Counts["mergedRows"], r.Counts["newRows"], r.RunID, r.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&entityID, "entity-id", 0, "only this entity id")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs")
	return cmd
}

func (a *app) entities(name string) ([]internal.Entity, error) {
	if strings.TrimSpace(name) == "" {
		return a.cfg.Entities()
	}
	e, err := a.cfg.Entity(name)
	if err != nil {
		return nil, err
	}
	return []internal.Entity{e}, nil
}

func (a *app) processor() (*pipeline.ProcessingService, error) {
	types, err := a.cfg.TypeMap()
	if err != nil {
		return nil, err
	}

	engine := pipeline.NewEngine(types, pipeline.KeyPolicyFor(a.cfg.DedupKeyColumns), pipeline.RetainAll{}, a.log.Named("engine"))
	fetch := connectors.NewFetchService(a.cfg.RawDir, a.cfg.KeepRaw, map[string]connectors.Fetcher{
		"http": httpfetch.New(httpfetch.Options{
			Timeout:     a.cfg.FetchTimeout(),
			Retries:     a.cfg.FetchRetries,
			RateLimit:   a.cfg.FetchRateLimitRPS,
			InsecureTLS: a.cfg.FetchInsecureTLS,
		}, a.log),
		"file": localfs.Fetcher{},
	})
	store := storage.NewSnapshotStore(a.cfg.SnapshotDir(), a.cfg.ExportXLSX)
	dates := pipeline.DateRewriter{
		Columns:      a.cfg.DateColumns,
		InputLayout:  a.cfg.DateInputLayout,
		OutputLayout: a.cfg.DateOutLayout,
	}
	return pipeline.NewProcessingService(engine, fetch, store, a.db, dates, a.log.Named("process")), nil
}

func (a *app) scope() connectors.LocatorScope {
	switch a.cfg.LogSource {
	case "sqlite":
		return connectors.StaticScope(storage.FileLogLocator{DB: a.db, Pattern: a.cfg.LogFilePattern, Top: a.cfg.LogTop})
	case "mssql":
		return mssql.Scope(a.cfg.MSSQLDSN, mssql.Options{
			Pattern:    a.cfg.LogFilePattern,
			Top:        a.cfg.LogTop,
			InfoColumn: a.cfg.LogFileInfoColumn,
		}, a.log.Named("mssql"))
	default:
		return func(context.Context, func(connectors.SourceLocator) error) error {
			return eris.Wrapf(internal.ErrConfiguration, "unsupported LOG_SOURCE: %s", a.cfg.LogSource)
		}
	}
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
