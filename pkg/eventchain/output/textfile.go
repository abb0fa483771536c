package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TextFile writes text through a temporary file that is renamed to its
// final name on Close. An aborted run leaves the partial .tmp file behind
// instead of a truncated result. The first line names the run the file
// belongs to.
type TextFile struct {
	path   string
	file   *os.File
	buf    *bufio.Writer
	closed bool
}

// NewTextFile opens path + ".tmp" and writes the run header line.
func NewTextFile(path, runID string) (*TextFile, error) {
	if dir := filepath.Dir(path); dir != "." {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("output: directory %q does not exist", dir)
		}
	}
	f, err := os.Create(path + ".tmp")
	if err != nil {
		return nil, err
	}
	t := &TextFile{path: path, file: f, buf: bufio.NewWriter(f)}
	if err := t.Printf("# run %s\n", runID); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

// Path returns the final file name.
func (t *TextFile) Path() string { return t.path }

// Printf writes formatted text into the temporary file.
func (t *TextFile) Printf(format string, args ...any) error {
	if t.closed {
		return fmt.Errorf("output: %s already finalized", t.path)
	}
	_, err := fmt.Fprintf(t.buf, format, args...)
	return err
}

// Close flushes the buffer and renames the temporary file into its final
// name. Subsequent calls are no-ops.
func (t *TextFile) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.buf.Flush(); err != nil {
		return err
	}
	if err := t.file.Close(); err != nil {
		return err
	}
	return os.Rename(t.path+".tmp", t.path)
}

// Dump copies the temporary file to path + ".dump" so a resumed run can
// append where the dump left off.
func (t *TextFile) Dump() error {
	if t.closed {
		return fmt.Errorf("output: %s already finalized", t.path)
	}
	if err := t.buf.Flush(); err != nil {
		return err
	}
	return copyFile(t.path+".tmp", t.path+".dump")
}

// Restore replaces the temporary file with the last dump and reopens it for
// appending. Call it once, right after the writer is rebuilt on resume.
func (t *TextFile) Restore() error {
	if t.closed {
		return fmt.Errorf("output: %s already finalized", t.path)
	}
	if err := t.buf.Flush(); err != nil {
		return err
	}
	if err := t.file.Close(); err != nil {
		return err
	}
	if err := copyFile(t.path+".dump", t.path+".tmp"); err != nil {
		return err
	}
	f, err := os.OpenFile(t.path+".tmp", os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	t.file = f
	t.buf = bufio.NewWriter(f)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
