package stream

import (
	"archive/zip"
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
)

// ErrFileNotFound indicates a file was not found in the backup archive.
var ErrFileNotFound = errors.New("file not found in backup")

// maxLine bounds one JSONL record; an alternative with many mirrors is a long line.
const maxLine = 4 << 20

// OpenFile opens the named entry of a zip archive.
func OpenFile(zr *zip.Reader, path string) (io.ReadCloser, error) {
	f, err := zr.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrFileNotFound
	}
	return f, err
}

// ReadDocument decodes the single JSON file at path into v.
func ReadDocument(zr *zip.Reader, path string, v any) error {
	rc, err := OpenFile(zr, path)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Records iterates the JSONL stream in rc as values of T and closes rc
// when done. A malformed line yields a *LineError and iteration goes on;
// a read failure yields the error and stops.
func Records[T any](rc io.ReadCloser) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer rc.Close()

		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 0, 64<<10), maxLine)

		var zero T
		for n := 1; scanner.Scan(); n++ {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var record T
			if err := json.Unmarshal(line, &record); err != nil {
				if !yield(zero, &LineError{Line: n, Err: err}) {
					return
				}
				continue
			}
			if !yield(record, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(zero, err)
		}
	}
}

// LineError reports a JSONL line that did not decode.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }
