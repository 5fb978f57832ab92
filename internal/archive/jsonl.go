package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Writer writes works as line delimited json, one work per line.
// It is safe for concurrent use.
type Writer struct {
	mutex sync.Mutex
	out   io.Writer
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) Write(works ...Work) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	for _, work := range works {
		line, err := json.Marshal(work)
		if err != nil {
			return fmt.Errorf("marshal work %s: %w", work.Id, err)
		}
		line = append(line, '\n')
		_, err = w.out.Write(line)
		if err != nil {
			return err
		}
	}
	return nil
}

// maxLineSize bounds a single serialized work, tag heavy works can get long.
const maxLineSize = 4 * 1024 * 1024

// ReadChunks reads line delimited works and calls fn with at most size works at a time,
// blank lines are skipped.
func ReadChunks(r io.Reader, size int, fn func(chunk []Work) error) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	chunk := make([]Work, 0, size)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var work Work
		err := json.Unmarshal([]byte(line), &work)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		chunk = append(chunk, work)

		if len(chunk) == size {
			err = fn(chunk)
			if err != nil {
				return err
			}
			chunk = make([]Work, 0, size)
		}
	}
	err := scanner.Err()
	if err != nil {
		return err
	}

	if len(chunk) > 0 {
		return fn(chunk)
	}
	return nil
}
