package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"

	"wmclean/internal/logging"
)

// ErrNoLogs reports that the log directory holds no wmclean log files.
var ErrNoLogs = errors.New("no log files found")

// Matcher reports whether a raw log line should be shown.
type Matcher func(line string) bool

// JobMatcher keeps JSON lines whose job_id starts with prefix. An empty prefix
// matches everything; non-JSON lines never match a non-empty prefix.
func JobMatcher(prefix string) Matcher {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil
	}
	return func(line string) bool {
		var fields map[string]any
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			return false
		}
		id, _ := fields[logging.FieldJobID].(string)
		return strings.HasPrefix(id, prefix)
	}
}

// Latest returns the newest daily log file in dir.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, logging.LogFilePrefix+"*.log"))
	if err != nil {
		return "", fmt.Errorf("list log files: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoLogs, dir)
	}
	// Daily names sort chronologically.
	slices.Sort(matches)
	return matches[len(matches)-1], nil
}

// Last returns up to limit matching lines from the end of path and the offset
// just past the last byte read.
func Last(path string, limit int, match Matcher) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		offset, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, offset, nil
	}

	ring := make([]string, limit)
	count := 0
	idx := 0
	offset, err := scanLines(file, func(line string) {
		if match != nil && !match(line) {
			return
		}
		ring[idx] = line
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, count)
	if count == limit {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, offset, nil
}

// Follow emits matching lines appended to path after offset until ctx is
// canceled. A truncated file is read again from the start. When a newer daily
// log appears beside path, the rest of path is drained and following moves to
// the new file.
func Follow(ctx context.Context, path string, offset int64, match Matcher, emit func(string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch log directory: %w", err)
	}

	// Catch lines written between Last and Add.
	if offset, err = readForward(path, offset, match, emit); err != nil {
		return err
	}
	// A rollover may also have happened before Add.
	if next, err := Latest(dir); err == nil && newerLog(next, path) {
		if path, offset, err = rollOver(path, next, offset, match, emit); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Has(fsnotify.Create) && newerLog(event.Name, path):
				if path, offset, err = rollOver(path, event.Name, offset, match, emit); err != nil {
					return err
				}
			case event.Has(fsnotify.Write) && filepath.Clean(event.Name) == filepath.Clean(path):
				if offset, err = readForward(path, offset, match, emit); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch log file: %w", err)
		}
	}
}

// newerLog reports whether candidate is a daily log that sorts after current.
func newerLog(candidate, current string) bool {
	name := filepath.Base(candidate)
	if !strings.HasPrefix(name, logging.LogFilePrefix) || filepath.Ext(name) != ".log" {
		return false
	}
	return filepath.Dir(candidate) == filepath.Dir(current) && name > filepath.Base(current)
}

func rollOver(current, next string, offset int64, match Matcher, emit func(string)) (string, int64, error) {
	if _, err := readForward(current, offset, match, emit); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return current, offset, err
	}
	offset, err := readForward(next, 0, match, emit)
	if err != nil {
		return next, 0, err
	}
	return next, offset, nil
}

func readForward(path string, offset int64, match Matcher, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	consumed, err := scanLines(file, func(line string) {
		if match == nil || match(line) {
			emit(line)
		}
	})
	if err != nil {
		return offset, err
	}
	return offset + consumed, nil
}

// scanLines calls fn for every complete line and returns the bytes consumed.
// A trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return consumed, nil
			}
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		fn(strings.TrimRight(line, "\r\n"))
	}
}
