// Package extractor runs one HiBob extraction: it lists employees, fans out
// to the configured per-employee endpoints, flattens every record into a
// row, tracks the columns of each table across runs and writes the rows to
// table sinks.
//
// A run moves through the phases
//
//	init -> fetching_employees -> fetching_<resource>* -> persisting_state -> done
//
// and ends in failed on any error. A failed run leaves the persisted schema
// state untouched; rows already handed to a sink are kept.
package extractor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ajitpratap0/hibob-extractor/pkg/connector/destinations/csv"
	"github.com/ajitpratap0/hibob-extractor/pkg/errors"
	"github.com/ajitpratap0/hibob-extractor/pkg/flatten"
	"github.com/ajitpratap0/hibob-extractor/pkg/hibob"
	"github.com/ajitpratap0/hibob-extractor/pkg/logger"
	"github.com/ajitpratap0/hibob-extractor/pkg/metrics"
	"github.com/ajitpratap0/hibob-extractor/pkg/models"
	"github.com/ajitpratap0/hibob-extractor/pkg/observability"
	"github.com/ajitpratap0/hibob-extractor/pkg/schema"
	"go.uber.org/zap"
)

// PrimaryKey is declared for every table.
var PrimaryKey = []string{"id"}

// Source is the part of the HiBob client the extractor uses.
type Source interface {
	ListEmployees(ctx context.Context, opts hibob.ListOptions) (*hibob.Employees, error)
	FetchSubResource(ctx context.Context, kind hibob.SubResource, employeeID string) ([]*models.Record, error)
}

// Options select what a run extracts.
type Options struct {
	// Resources are the sub-resource names to fetch for every employee
	Resources     []string
	HumanReadable bool
	Fields        []string
	// Incremental marks the written tables for incremental loading
	Incremental bool
}

// Extractor sequences a run. Each Extractor runs once.
type Extractor struct {
	source    Source
	sinks     SinkFactory
	store     schema.Store
	opts      Options
	resources []Resource
	logger    *zap.Logger

	mu    sync.RWMutex
	phase Phase
}

// New validates opts and builds an extractor. Unknown resource names are a
// configuration error; nothing is fetched.
func New(source Source, sinks SinkFactory, store schema.Store, opts Options, log *zap.Logger) (*Extractor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	resources, err := ResolveResources(opts.Resources)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		source:    source,
		sinks:     sinks,
		store:     store,
		opts:      opts,
		resources: resources,
		logger:    log.With(zap.String("component", "extractor")),
		phase:     PhaseInit,
	}, nil
}

// Phase returns the current phase.
func (e *Extractor) Phase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

func (e *Extractor) setPhase(ctx context.Context, p Phase) {
	e.mu.Lock()
	prev := e.phase
	e.phase = p
	e.mu.Unlock()
	logger.WithContext(ctx, e.logger).Debug("phase changed",
		zap.String("from", string(prev)),
		zap.String("to", string(p)))
}

// Run performs the extraction. The returned summary is never nil, and on
// failure describes what was written before the error.
func (e *Extractor) Run(ctx context.Context) (summary *Summary, err error) {
	runID, ok := ctx.Value(logger.RunIDKey).(string)
	if !ok {
		ctx, runID = logger.NewRunContext(ctx)
	}
	log := logger.WithContext(ctx, e.logger)
	summary = &Summary{RunID: runID, Phase: e.Phase()}

	if summary.Phase != PhaseInit {
		msg := "extractor is already running"
		if summary.Phase.Terminal() {
			msg = "extractor already ran"
		}
		return summary, errors.New(errors.ErrorTypeInternal, msg).
			WithDetail("phase", string(summary.Phase))
	}

	ctx, span := observability.StartSpan(ctx, "extractor.run",
		observability.Attr("run_id", runID),
		observability.Attr("resources", len(e.resources)),
		observability.Attr("incremental", e.opts.Incremental))
	timer := metrics.NewTimer()

	log.Info("extraction started",
		zap.Strings("resources", resourceNames(e.resources)),
		zap.Bool("incremental", e.opts.Incremental),
		zap.Bool("human_readable", e.opts.HumanReadable))

	defer func() {
		summary.Duration = timer.Stop()
		status := "success"
		if err != nil {
			status = "failed"
			e.setPhase(ctx, PhaseFailed)
		}
		summary.Phase = e.Phase()
		metrics.RunDuration.WithLabelValues(status).Set(summary.Duration.Seconds())
		observability.EndSpan(span, err)

		if err != nil {
			log.Error("extraction failed",
				zap.String("phase", string(summary.Phase)),
				zap.String("endpoint", errors.Endpoint(err)),
				zap.Error(err))
			return
		}
		log.Info("extraction finished",
			zap.Int("employees", summary.EmployeesSeen),
			zap.Int("tables", len(summary.Tables)),
			zap.Duration("duration", summary.Duration))
	}()

	state, err := e.store.Load(ctx)
	if err != nil {
		return summary, err
	}

	ids, err := e.extractEmployees(ctx, state, summary)
	if err != nil {
		return summary, err
	}

	for _, res := range e.resources {
		if err := e.extractResource(ctx, res, ids, state, summary); err != nil {
			return summary, err
		}
	}

	e.setPhase(ctx, PhasePersistingState)
	if err := e.store.Save(ctx, state); err != nil {
		return summary, err
	}
	log.Info("schema state saved", zap.Strings("tables", state.Tables()))

	e.setPhase(ctx, PhaseDone)
	return summary, nil
}

// extractEmployees writes the employees table and returns the ids to fan
// out to, in list order.
func (e *Extractor) extractEmployees(ctx context.Context, state *schema.State, summary *Summary) ([]string, error) {
	e.setPhase(ctx, PhaseFetchingEmployees)

	var ids []string
	err := e.writeTable(ctx, EmployeesTable, state, summary, func(ctx context.Context, emit func(*models.Record) error) error {
		employees, err := e.source.ListEmployees(ctx, hibob.ListOptions{
			HumanReadable: e.opts.HumanReadable,
			Fields:        e.opts.Fields,
		})
		if err != nil {
			return err
		}

		for {
			employee, ok := employees.Next()
			if !ok {
				return nil
			}
			summary.EmployeesSeen++
			if id, ok := employeeID(employee); ok {
				ids = append(ids, id)
			}
			if err := emit(employee); err != nil {
				return err
			}
		}
	})
	summary.IDsCollected = len(ids)
	return ids, err
}

// extractResource fetches res for every id and writes its table.
func (e *Extractor) extractResource(ctx context.Context, res Resource, ids []string, state *schema.State, summary *Summary) error {
	e.setPhase(ctx, res.Phase)

	return e.writeTable(ctx, res.Table, state, summary, func(ctx context.Context, emit func(*models.Record) error) error {
		for _, id := range ids {
			records, err := e.source.FetchSubResource(ctx, res.Kind, id)
			if err != nil {
				return err
			}
			for _, rec := range records {
				if err := emit(rec); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// writeTable opens the table sink, lets produce emit nested records into it
// and closes the sink, also when produce fails.
func (e *Extractor) writeTable(ctx context.Context, table string, state *schema.State, summary *Summary,
	produce func(ctx context.Context, emit func(*models.Record) error) error) (err error) {
	ctx = logger.WithResource(ctx, table)
	log := logger.WithContext(ctx, e.logger)
	ctx, span := observability.StartSpan(ctx, "extractor.table", observability.Attr("table", table))

	ts := TableSummary{Name: table}
	defer func() {
		ts.Columns = len(state.Columns(table))
		summary.Tables = append(summary.Tables, ts)
		metrics.SchemaColumns.WithLabelValues(table).Set(float64(ts.Columns))
		span.SetAttributes(observability.Attr("rows", ts.Rows))
		observability.EndSpan(span, err)
	}()

	sink, err := e.sinks.Open(csv.TableDefinition{
		Name:        table,
		PrimaryKey:  PrimaryKey,
		Incremental: e.opts.Incremental,
	}, state.Columns(table))
	if err != nil {
		return err
	}
	log.Info("table extraction started", zap.Int("known_columns", len(state.Columns(table))))

	flattener := flatten.New(func(key, previousPath, path string) {
		metrics.FlattenCollisions.WithLabelValues(table).Inc()
		log.Warn("flattened keys collide after normalization",
			zap.String("column", key),
			zap.String("dropped_path", previousPath),
			zap.String("kept_path", path))
	})
	rows := metrics.RowsEmitted.WithLabelValues(table)

	emit := func(rec *models.Record) error {
		row := flattener.Flatten(rec)
		if added := state.Observe(table, row); len(added) > 0 {
			ts.NewColumns = append(ts.NewColumns, added...)
			metrics.NewColumns.WithLabelValues(table).Add(float64(len(added)))
			log.Debug("new columns discovered", zap.Strings("columns", added))
		}
		if err := sink.WriteRow(row); err != nil {
			return err
		}
		ts.Rows++
		rows.Inc()
		return nil
	}

	err = produce(ctx, emit)
	if closeErr := sink.Close(); closeErr != nil {
		if err == nil {
			err = closeErr
		} else {
			log.Error("failed to finalize table after error", zap.Error(closeErr))
		}
	}
	if err != nil {
		return err
	}

	log.Info("table extraction finished",
		zap.Int64("rows", ts.Rows),
		zap.Int("new_columns", len(ts.NewColumns)))
	return nil
}

// employeeID returns the identifier used for the detail endpoints. Records
// without one are written but not fanned out.
func employeeID(employee *models.Record) (string, bool) {
	v, ok := employee.Get("id")
	if !ok {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), id != "" && id != "0"
	default:
		return "", false
	}
}

func resourceNames(resources []Resource) []string {
	names := make([]string, len(resources))
	for i, r := range resources {
		names[i] = r.Name
	}
	return names
}
