package extractor

import (
	"time"

	"github.com/ajitpratap0/hibob-extractor/pkg/connector/destinations/csv"
	"github.com/ajitpratap0/hibob-extractor/pkg/models"
)

// Phase is a step of the extraction state machine.
type Phase string

const (
	PhaseInit                      Phase = "init"
	PhaseFetchingEmployees         Phase = "fetching_employees"
	PhaseFetchingEmploymentHistory Phase = "fetching_employment_history"
	PhaseFetchingLifecycle         Phase = "fetching_lifecycle"
	PhaseFetchingWorkHistory       Phase = "fetching_work_history"
	PhasePersistingState           Phase = "persisting_state"
	PhaseDone                      Phase = "done"
	PhaseFailed                    Phase = "failed"
)

// Terminal reports whether no further transition can happen.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// RowSink receives the flat rows of one table. Rows may miss declared
// columns or carry new ones.
type RowSink interface {
	WriteRow(row *models.Record) error
	Close() error
}

// SinkFactory opens a sink for a table, seeded with the known columns.
type SinkFactory interface {
	Open(def csv.TableDefinition, columns []string) (RowSink, error)
}

// SinkFactoryFunc adapts a function to SinkFactory.
type SinkFactoryFunc func(def csv.TableDefinition, columns []string) (RowSink, error)

// Open calls f.
func (f SinkFactoryFunc) Open(def csv.TableDefinition, columns []string) (RowSink, error) {
	return f(def, columns)
}

// CSVSinks writes every table through dest.
func CSVSinks(dest *csv.Destination) SinkFactory {
	return SinkFactoryFunc(func(def csv.TableDefinition, columns []string) (RowSink, error) {
		return dest.Open(def, columns)
	})
}

// TableSummary reports what a run wrote to one table.
type TableSummary struct {
	Name       string   `json:"name"`
	Rows       int64    `json:"rows"`
	Columns    int      `json:"columns"`
	NewColumns []string `json:"new_columns,omitempty"`
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID         string         `json:"run_id"`
	Phase         Phase          `json:"phase"`
	EmployeesSeen int            `json:"employees_seen"`
	IDsCollected  int            `json:"ids_collected"`
	Tables        []TableSummary `json:"tables"`
	Duration      time.Duration  `json:"duration"`
}

// Table returns the summary of the named table.
func (s *Summary) Table(name string) (TableSummary, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSummary{}, false
}
