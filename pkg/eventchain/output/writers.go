package output

import (
	"math"
	"strconv"
	"strings"

	"github.com/avandermeer/eventchain/pkg/eventchain/geometry"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// Discard drops every sample. Resume replays legs through it when the
// output files must not be written twice.
type Discard struct{}

func (Discard) Write([]*state.Branch) error { return nil }
func (Discard) Flush() error                { return nil }

// PositionWriter writes one line per sample: the coordinates of every leaf
// unit in branch order, space separated.
type PositionWriter struct {
	file    *TextFile
	samples int
}

// NewPositionWriter opens the output file for a run.
func NewPositionWriter(path, runID string) (*PositionWriter, error) {
	file, err := NewTextFile(path, runID)
	if err != nil {
		return nil, err
	}
	return &PositionWriter{file: file}, nil
}

func (w *PositionWriter) Write(full []*state.Branch) error {
	var line strings.Builder
	for _, b := range full {
		for _, u := range b.Leaves() {
			for _, x := range u.Position {
				if line.Len() > 0 {
					line.WriteByte(' ')
				}
				line.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
			}
		}
	}
	if err := w.file.Printf("%s\n", line.String()); err != nil {
		return err
	}
	w.samples++
	return nil
}

// Samples returns the number of samples written so far.
func (w *PositionWriter) Samples() int { return w.samples }

func (w *PositionWriter) Flush() error   { return w.file.Close() }
func (w *PositionWriter) Dump() error    { return w.file.Dump() }
func (w *PositionWriter) Restore() error { return w.file.Restore() }

// SeparationWriter writes the norm of the minimum-image separation between
// every pair of leaf units in different root branches, one line per pair.
type SeparationWriter struct {
	box     *geometry.Box
	file    *TextFile
	samples int
}

// NewSeparationWriter opens the output file for a run.
func NewSeparationWriter(box *geometry.Box, path, runID string) (*SeparationWriter, error) {
	file, err := NewTextFile(path, runID)
	if err != nil {
		return nil, err
	}
	return &SeparationWriter{box: box, file: file}, nil
}

func (w *SeparationWriter) Write(full []*state.Branch) error {
	for i, first := range full {
		for _, second := range full[i+1:] {
			for _, a := range first.Leaves() {
				for _, b := range second.Leaves() {
					sep := w.box.Separation(a.Position, b.Position)
					var sq float64
					for _, s := range sep {
						sq += s * s
					}
					norm := strconv.FormatFloat(math.Sqrt(sq), 'g', -1, 64)
					if err := w.file.Printf("%s\n", norm); err != nil {
						return err
					}
				}
			}
		}
	}
	w.samples++
	return nil
}

// Samples returns the number of samples written so far.
func (w *SeparationWriter) Samples() int { return w.samples }

func (w *SeparationWriter) Flush() error   { return w.file.Close() }
func (w *SeparationWriter) Dump() error    { return w.file.Dump() }
func (w *SeparationWriter) Restore() error { return w.file.Restore() }

var (
	_ Writer = Discard{}
	_ Writer = (*PositionWriter)(nil)
	_ Dumper = (*PositionWriter)(nil)
	_ Writer = (*SeparationWriter)(nil)
	_ Dumper = (*SeparationWriter)(nil)
)
