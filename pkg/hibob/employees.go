package hibob

import "github.com/ajitpratap0/hibob-extractor/pkg/models"

// Employees is a single-pass iterator over a fetched employee list.
type Employees struct {
	records []*models.Record
	pos     int
}

func newEmployees(records []*models.Record) *Employees {
	return &Employees{records: records}
}

// Next returns the next employee, skipping null entries. ok is false once
// the list is exhausted; the iterator cannot be rewound.
func (e *Employees) Next() (*models.Record, bool) {
	for e.pos < len(e.records) {
		r := e.records[e.pos]
		e.records[e.pos] = nil
		e.pos++
		if r != nil {
			return r, true
		}
	}
	return nil, false
}

// Len returns the number of entries in the response.
func (e *Employees) Len() int {
	return len(e.records)
}
