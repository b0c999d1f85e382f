package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Filter keeps lines that mention every non-empty field. Both the console and
// JSON formats print the pass and item ids verbatim, so a substring match
// works for either.
type Filter struct {
	PassID string
	ItemID string
}

func (f Filter) match(line string) bool {
	if f.PassID != "" && !strings.Contains(line, f.PassID) {
		return false
	}
	if f.ItemID != "" && !strings.Contains(line, f.ItemID) {
		return false
	}
	return true
}

// Result holds matching lines and the file offset to resume from.
type Result struct {
	Lines  []string
	Offset int64
}

const (
	scanBufferSize = 64 * 1024
	maxLineSize    = 1024 * 1024
)

// Last returns up to limit matching lines from the end of the file. A
// missing file yields no lines and offset zero.
func Last(path string, limit int, filter Filter) (Result, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return Result{}, err
	}
	defer file.Close()

	if limit <= 0 {
		offset, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return Result{}, fmt.Errorf("seek log file: %w", err)
		}
		return Result{Offset: offset}, nil
	}

	ring := make([]string, limit)
	count, idx := 0, 0
	offset, err := scan(file, func(line string) {
		if !filter.match(line) {
			return
		}
		ring[idx] = line
		idx = (idx + 1) % limit
		count = min(count+1, limit)
	})
	if err != nil {
		return Result{}, err
	}

	lines := make([]string, count)
	if count == limit {
		for i := range count {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return Result{Lines: lines, Offset: offset}, nil
}

// Since returns matching lines written after offset. When the file shrank
// below offset (rotation) reading restarts from the beginning.
func Since(path string, offset int64, filter Filter) (Result, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return Result{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{Offset: offset}, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Result{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	next, err := scan(file, func(line string) {
		if filter.match(line) {
			lines = append(lines, line)
		}
	})
	if err != nil {
		return Result{Offset: offset}, err
	}
	return Result{Lines: lines, Offset: next}, nil
}

// Follow polls the file every interval and hands new matching lines to emit
// until ctx is done. It returns nil on cancellation.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, filter Filter, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := Since(path, offset, filter)
		if err != nil {
			return err
		}
		for _, line := range result.Lines {
			emit(line)
		}
		offset = result.Offset

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func openLog(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// scan reads complete lines from the current position and returns the
// offset just past the last complete line, so a half-written line is read
// again on the next call.
func scan(file *os.File, fn func(string)) (int64, error) {
	start, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	reader := bufio.NewReaderSize(file, scanBufferSize)
	offset := start
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if len(line) > maxLineSize {
			line = line[:maxLineSize]
		}
		fn(line)
	}
}
