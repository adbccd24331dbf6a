package csv

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/ajitpratap0/hibob-extractor/pkg/compression"
	"github.com/ajitpratap0/hibob-extractor/pkg/errors"
	jsonpool "github.com/ajitpratap0/hibob-extractor/pkg/json"
	"github.com/ajitpratap0/hibob-extractor/pkg/models"
	"go.uber.org/zap"
)

// ElasticWriter writes the rows of one table. Rows may omit known columns
// (written as empty cells) or bring new ones (appended to the header).
// It is not safe for concurrent use.
type ElasticWriter struct {
	def        TableDefinition
	path       string
	compressor compression.Compressor
	logger     *zap.Logger

	columns []string
	index   map[string]int

	// spill holds one JSON array of cells per line; the CSV is only
	// produced once the header is final.
	spill *os.File
	buf   *bufio.Writer

	rows   int64
	closed bool
}

func newElasticWriter(def TableDefinition, columns []string, path string, spill *os.File,
	compressor compression.Compressor, logger *zap.Logger) *ElasticWriter {
	w := &ElasticWriter{
		def:        def,
		path:       path,
		compressor: compressor,
		logger:     logger.With(zap.String("table", def.Name)),
		index:      make(map[string]int, len(columns)),
		spill:      spill,
		buf:        bufio.NewWriterSize(spill, 64*1024),
	}
	for _, c := range columns {
		w.addColumn(c)
	}
	return w
}

func (w *ElasticWriter) addColumn(name string) bool {
	if _, ok := w.index[name]; ok {
		return false
	}
	w.index[name] = len(w.columns)
	w.columns = append(w.columns, name)
	return true
}

// WriteRow appends one flat row.
func (w *ElasticWriter) WriteRow(row *models.Record) error {
	if w.closed {
		return errors.New(errors.ErrorTypeInternal, "write to closed table").
			WithDetail("table", w.def.Name)
	}

	for _, key := range row.Keys() {
		if w.addColumn(key) {
			w.logger.Debug("column added", zap.String("column", key))
		}
	}

	cells := make([]string, len(w.columns))
	var cellErr error
	row.Range(func(key string, value interface{}) bool {
		cell, err := FormatCell(value)
		if err != nil {
			cellErr = errors.Wrap(err, errors.ErrorTypeData, "failed to format cell").
				WithDetail("table", w.def.Name).
				WithDetail("column", key)
			return false
		}
		cells[w.index[key]] = cell
		return true
	})
	if cellErr != nil {
		return cellErr
	}

	line, err := jsonpool.Marshal(cells)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode row").
			WithDetail("table", w.def.Name)
	}
	if _, err := w.buf.Write(append(line, '\n')); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to spill row").
			WithDetail("table", w.def.Name)
	}
	w.rows++
	return nil
}

// Columns returns the current header.
func (w *ElasticWriter) Columns() []string {
	out := make([]string, len(w.columns))
	copy(out, w.columns)
	return out
}

// Rows returns the number of rows written so far.
func (w *ElasticWriter) Rows() int64 {
	return w.rows
}

// Path returns the final table file path.
func (w *ElasticWriter) Path() string {
	return w.path
}

// Close writes the table file with the final header and its manifest, then
// removes the spill file. Calling Close more than once is a no-op.
func (w *ElasticWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer os.Remove(w.spill.Name())

	if err := w.finish(); err != nil {
		w.spill.Close()
		return err
	}
	if err := w.spill.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close spill file").
			WithDetail("table", w.def.Name)
	}
	if err := writeManifest(w.path, w.def); err != nil {
		return err
	}

	w.logger.Info("table written",
		zap.String("path", w.path),
		zap.Int64("rows", w.rows),
		zap.Int("columns", len(w.columns)),
		zap.String("compression", string(w.compressor.Algorithm())))
	return nil
}

func (w *ElasticWriter) finish() error {
	if err := w.buf.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to spill rows").
			WithDetail("table", w.def.Name)
	}
	if _, err := w.spill.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to rewind spill file").
			WithDetail("table", w.def.Name)
	}

	var header bytes.Buffer
	if len(w.columns) > 0 {
		hw := csv.NewWriter(&header)
		hw.Comma = Delimiter
		if err := hw.Write(w.columns); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode header")
		}
		hw.Flush()
	}

	out, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create table file").
			WithDetail("path", w.path)
	}

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(padRows(pw, w.spill, len(w.columns)))
	}()

	err = w.compressor.CompressStream(out, io.MultiReader(&header, pr))
	pr.CloseWithError(err)
	<-done
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write table file").
			WithDetail("path", w.path)
	}
	return nil
}

// padRows converts the spilled rows to CSV records of width cells.
func padRows(dst io.Writer, spill io.Reader, width int) error {
	r := bufio.NewReaderSize(spill, 64*1024)

	bw := bufio.NewWriter(dst)
	cw := csv.NewWriter(bw)
	cw.Comma = Delimiter

	padded := make([]string, width)
	for {
		line, err := r.ReadBytes('\n')
		if err == io.EOF && len(line) == 0 {
			break
		}
		if err != nil && err != io.EOF {
			return err
		}

		var cells []string
		if err := jsonpool.Unmarshal(line, &cells); err != nil {
			return fmt.Errorf("corrupt spill line: %w", err)
		}
		if width == 0 {
			continue
		}
		n := copy(padded, cells)
		for i := n; i < width; i++ {
			padded[i] = ""
		}

		// a lone empty cell would otherwise become a blank line, which
		// readers skip
		if width == 1 && padded[0] == "" {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
			if _, err := bw.WriteString(`""` + "\n"); err != nil {
				return err
			}
			continue
		}
		if err := cw.Write(padded); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
