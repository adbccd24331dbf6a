// Package csv writes extracted tables as CSV files in a Keboola-style output
// folder.
//
// Each table is written through an ElasticWriter: rows are spilled to a
// temporary file as they arrive, the header grows whenever a row carries an
// unknown key, and on Close the final file is produced with the complete
// header and every row padded to it. A manifest describing the load mode and
// primary key is written next to the table file.
//
// # Example Usage
//
//	dest, err := csv.NewDestination("data/out/tables", &compression.Config{Algorithm: compression.Gzip}, logger)
//	if err != nil {
//	    return err
//	}
//	w, err := dest.Open(csv.TableDefinition{Name: "employees", PrimaryKey: []string{"id"}}, known)
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	for _, row := range rows {
//	    if err := w.WriteRow(row); err != nil {
//	        return err
//	    }
//	}
package csv

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/ajitpratap0/hibob-extractor/pkg/compression"
	"github.com/ajitpratap0/hibob-extractor/pkg/errors"
	jsonpool "github.com/ajitpratap0/hibob-extractor/pkg/json"
	"go.uber.org/zap"
)

const (
	// Delimiter separates cells in every written file.
	Delimiter = ','
	// Enclosure quotes cells that need it.
	Enclosure = `"`
	// ManifestSuffix is appended to a table file name to name its manifest.
	ManifestSuffix = ".manifest"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// TableDefinition describes one output table.
type TableDefinition struct {
	Name        string
	PrimaryKey  []string
	Incremental bool
}

// Manifest is the sidecar file describing how a table should be loaded.
type Manifest struct {
	Incremental bool     `json:"incremental"`
	PrimaryKey  []string `json:"primary_key"`
	Delimiter   string   `json:"delimiter"`
	Enclosure   string   `json:"enclosure"`
}

// Destination creates table writers inside one folder.
type Destination struct {
	dir        string
	compressor compression.Compressor
	logger     *zap.Logger
}

// NewDestination creates a destination writing into dir. A nil compression
// config writes plain CSV.
func NewDestination(dir string, cfg *compression.Config, logger *zap.Logger) (*Destination, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	compressor, err := compression.NewCompressor(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid output compression")
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output folder").
			WithDetail("path", dir)
	}

	return &Destination{
		dir:        dir,
		compressor: compressor,
		logger:     logger.With(zap.String("component", "csv_destination")),
	}, nil
}

// Dir returns the output folder.
func (d *Destination) Dir() string {
	return d.dir
}

// TablePath returns the path the named table is written to.
func (d *Destination) TablePath(name string) string {
	return filepath.Join(d.dir, name+".csv"+d.compressor.Algorithm().Extension())
}

// Open starts a table. columns seeds the header; rows may add more.
func (d *Destination) Open(def TableDefinition, columns []string) (*ElasticWriter, error) {
	if !tableNamePattern.MatchString(def.Name) {
		return nil, errors.New(errors.ErrorTypeConfig, "invalid table name").
			WithDetail("table", def.Name)
	}

	spill, err := os.CreateTemp(d.dir, "."+def.Name+"-*.spill")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create spill file").
			WithDetail("table", def.Name)
	}

	w := newElasticWriter(def, columns, d.TablePath(def.Name), spill, d.compressor, d.logger)
	d.logger.Debug("table opened",
		zap.String("table", def.Name),
		zap.Int("known_columns", len(columns)))
	return w, nil
}

// writeManifest stores the manifest for the table file at path.
func writeManifest(path string, def TableDefinition) error {
	pk := def.PrimaryKey
	if pk == nil {
		pk = []string{}
	}

	data, err := jsonpool.Marshal(Manifest{
		Incremental: def.Incremental,
		PrimaryKey:  pk,
		Delimiter:   string(Delimiter),
		Enclosure:   Enclosure,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode manifest")
	}

	manifestPath := path + ManifestSuffix
	if err := os.WriteFile(manifestPath, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write manifest").
			WithDetail("path", manifestPath)
	}
	return nil
}
