package sihrd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/datasus/sihrd/pkg/batch/core/application/port"
)

// ErrDuplicateLookupKey is returned when a registry has two rows for one code.
var ErrDuplicateLookupKey = errors.New("duplicate lookup key")

// Lookup is an in-memory code to name registry.
type Lookup struct {
	name    string
	entries map[string]*string
}

// NewLookup creates an empty Lookup.
func NewLookup(name string) *Lookup {
	return &Lookup{name: name, entries: make(map[string]*string)}
}

// Name returns the registry name used in errors and logs.
func (l *Lookup) Name() string { return l.name }

// Add registers label under code. Rows without a code can never match and are skipped.
// A code seen twice is an error even when both labels agree.
func (l *Lookup) Add(code, label *string) error {
	if code == nil {
		return nil
	}
	if _, exists := l.entries[*code]; exists {
		return fmt.Errorf("%w: %s has more than one row for code %q", ErrDuplicateLookupKey, l.name, *code)
	}
	l.entries[*code] = label
	return nil
}

// Get returns the label of code, or nil when code is nil or unknown.
func (l *Lookup) Get(code *string) *string {
	if l == nil || code == nil {
		return nil
	}
	return l.entries[*code]
}

// Len returns the number of codes.
func (l *Lookup) Len() int { return len(l.entries) }

// ProcedureLookupKey drops the first character of a procedure code. The procedure
// registry is keyed without it. An empty code stays empty.
func ProcedureLookupKey(code *string) *string {
	if code == nil {
		return nil
	}
	s := *code
	for i := range s {
		if i > 0 {
			key := s[i:]
			return &key
		}
	}
	empty := ""
	return &empty
}

// LoadLookup drains reader into a Lookup named name. entry extracts code and label.
func LoadLookup[T any](ctx context.Context, name string, reader port.ItemReader[T], entry func(T) (code, label *string)) (lookup *Lookup, err error) {
	if err := reader.Open(ctx, nil); err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer func() {
		if closeErr := reader.Close(ctx); closeErr != nil && err == nil {
			lookup, err = nil, fmt.Errorf("close %s: %w", name, closeErr)
		}
	}()

	lookup = NewLookup(name)
	for {
		row, readErr := reader.Read(ctx)
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, port.ErrNoMoreItems) {
			return lookup, nil
		}
		if readErr != nil {
			return nil, fmt.Errorf("read %s: %w", name, readErr)
		}
		if addErr := lookup.Add(entry(row)); addErr != nil {
			return nil, addErr
		}
	}
}

// MunicipalityEntry extracts the code and name of a municipality row.
func MunicipalityEntry(row MunicipalityLookup) (*string, *string) { return row.COD, row.NOME }

// ProcedureEntry extracts the code and name of a procedure row.
func ProcedureEntry(row ProcedureLookup) (*string, *string) { return row.COD, row.PROCEDIMENTO }
