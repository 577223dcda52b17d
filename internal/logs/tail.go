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

// TailOptions controls how Tail reads the daemon's plain log file. A
// negative Offset asks for the last Limit lines; Follow with a positive Wait
// keeps polling until a line appears or the wait expires.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult carries the lines read and the byte offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

const tailPollInterval = 250 * time.Millisecond

// Tail reads log lines according to opts. A missing file is not an error;
// the zero offset in the result lets callers poll for the file to appear.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result TailResult
	if opts.Offset < 0 {
		result, err = tailEnd(path, opts.Limit)
	} else {
		start := opts.Offset
		if start > info.Size() {
			// The file was truncated or rotated under us.
			start = info.Size()
		}
		result, err = scanFrom(path, start)
	}
	if err != nil {
		return result, err
	}
	if len(result.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return result, nil
	}
	return pollForLines(ctx, path, result.Offset, opts.Wait)
}

// tailEnd returns the last limit lines and the end-of-file offset. A limit
// of zero skips to the end without collecting anything, which is how a
// follow session primes its resume offset.
func tailEnd(path string, limit int) (TailResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var lines []string
	if limit > 0 {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
			if len(lines) > limit*2 {
				lines = append(lines[:0], lines[len(lines)-limit:]...)
			}
		}
		if err := scanner.Err(); err != nil {
			return TailResult{}, fmt.Errorf("read log file: %w", err)
		}
		if len(lines) > limit {
			lines = lines[len(lines)-limit:]
		}
	}

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return TailResult{}, fmt.Errorf("seek log file: %w", err)
	}
	return TailResult{Lines: lines, Offset: offset}, nil
}

// scanFrom reads complete lines starting at offset. A trailing fragment
// without its newline stays unread so the next poll picks it up once the
// writer finishes the line.
func scanFrom(path string, offset int64) (TailResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	pos, err := f.Seek(offset, io.SeekStart)
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(f, 64*1024)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return TailResult{Offset: pos}, fmt.Errorf("read log file: %w", err)
		}
		pos += int64(len(line))
		lines = append(lines, strings.TrimSuffix(line, "\n"))
	}
	return TailResult{Lines: lines, Offset: pos}, nil
}

func pollForLines(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(tailPollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-deadline.C:
			return TailResult{Offset: offset}, nil
		case <-tick.C:
			result, err := scanFrom(path, offset)
			if err != nil || len(result.Lines) > 0 {
				return result, err
			}
			offset = result.Offset
		}
	}
}
