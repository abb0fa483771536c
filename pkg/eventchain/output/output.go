// Package output routes sampled state to named writers.
//
// Event handlers never touch files themselves: their mediate callbacks hand
// the extracted state to the registry under a writer name, and the registry
// delivers it. After the run the mediator flushes every writer, which is the
// moment file-backed writers finalize their output atomically.
package output

import (
	"errors"
	"fmt"
	"sort"

	"github.com/avandermeer/eventchain/pkg/eventchain/registry"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// Writer consumes samples of the global state for one named output.
type Writer interface {
	// Write records one sample. The branches belong to the caller and must
	// not be retained.
	Write(full []*state.Branch) error

	// Flush finalizes the output after the run. Flush is idempotent.
	Flush() error
}

// Dumper is implemented by writers that can carry partially written output
// across a dump-and-resume boundary.
type Dumper interface {
	// Dump persists the output written so far alongside the run snapshot.
	Dump() error

	// Restore picks up the output persisted by Dump on a fresh writer.
	Restore() error
}

// UnknownOutputError reports a write routed to a name no writer is
// registered under.
type UnknownOutputError struct {
	Name string
}

func (e *UnknownOutputError) Error() string {
	return fmt.Sprintf("output: no writer registered under %q", e.Name)
}

// DuplicateOutputError reports two writers registered under the same name.
type DuplicateOutputError struct {
	Name string
}

func (e *DuplicateOutputError) Error() string {
	return fmt.Sprintf("output: writer name %q registered twice", e.Name)
}

// Registry holds the named writers of one run and routes writes to them.
// It is safe for concurrent use, though a single run writes from one
// goroutine only.
type Registry struct {
	writers *registry.Registry[string, Writer]
}

// NewRegistry returns an empty writer registry.
func NewRegistry() *Registry {
	return &Registry{writers: registry.New[string, Writer]()}
}

// Add registers a writer under a name. Registering a name twice is a
// DuplicateOutputError.
func (r *Registry) Add(name string, w Writer) error {
	if !r.writers.RegisterOnce(name, w) {
		return &DuplicateOutputError{Name: name}
	}
	return nil
}

// Write delivers one sample to the named writer.
func (r *Registry) Write(name string, full []*state.Branch) error {
	w, ok := r.writers.Get(name)
	if !ok {
		return &UnknownOutputError{Name: name}
	}
	return w.Write(full)
}

// Has reports whether a writer is registered under the name.
func (r *Registry) Has(name string) bool { return r.writers.Has(name) }

// Remove drops the named writer without flushing it.
func (r *Registry) Remove(name string) { r.writers.Delete(name) }

// Names returns the registered writer names in sorted order.
func (r *Registry) Names() []string {
	names := r.writers.Keys()
	sort.Strings(names)
	return names
}

// Len returns the number of registered writers.
func (r *Registry) Len() int { return r.writers.Len() }

// Flush finalizes every writer. All writers are flushed even when some
// fail; the errors are joined.
func (r *Registry) Flush() error {
	var errs []error
	r.writers.Range(func(name string, w Writer) bool {
		if err := w.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("output %q: %w", name, err))
		}
		return true
	})
	return errors.Join(errs...)
}

// Dump persists the partial output of every writer that supports it.
func (r *Registry) Dump() error {
	var errs []error
	r.writers.Range(func(name string, w Writer) bool {
		d, ok := w.(Dumper)
		if !ok {
			return true
		}
		if err := d.Dump(); err != nil {
			errs = append(errs, fmt.Errorf("output %q: %w", name, err))
		}
		return true
	})
	return errors.Join(errs...)
}

// Restore picks up the dumped partial output on every writer that supports
// it. Call it once after rebuilding the writers on resume.
func (r *Registry) Restore() error {
	var errs []error
	r.writers.Range(func(name string, w Writer) bool {
		d, ok := w.(Dumper)
		if !ok {
			return true
		}
		if err := d.Restore(); err != nil {
			errs = append(errs, fmt.Errorf("output %q: %w", name, err))
		}
		return true
	})
	return errors.Join(errs...)
}

// DiscardAll replaces every registered writer with a Discard writer. Resume
// uses it to replay legs without touching the output files again.
func (r *Registry) DiscardAll() {
	for _, name := range r.writers.Keys() {
		r.writers.Register(name, Discard{})
	}
}
