package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
)

// journal is an append-only JSON Lines file. It counts the lines on disk so
// callers can decide when to compact.
type journal struct {
	path  string
	f     *os.File
	lines int
}

// openJournal replays every decodable line of path into each and opens the
// file for appending, creating it if needed. Undecodable lines are skipped.
func openJournal[T any](path string, each func(T)) (*journal, error) {
	j := &journal{path: path}
	if err := j.replay(func(b []byte) {
		var v T
		if json.Unmarshal(b, &v) == nil {
			each(v)
		}
	}); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := j.reopen(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *journal) replay(line func([]byte)) error {
	f, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		j.lines++
		line(sc.Bytes())
	}
	return sc.Err()
}

func (j *journal) reopen() error {
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	j.f = f
	return nil
}

func (j *journal) closed() bool { return j == nil || j.f == nil }

func (j *journal) append(v any) error {
	if j.closed() {
		return ErrClosed
	}
	if err := json.NewEncoder(j.f).Encode(v); err != nil {
		return err
	}
	j.lines++
	return nil
}

// rewrite atomically replaces the file with the n records produced by write
// and reopens it for appending.
func (j *journal) rewrite(n int, write func(enc *json.Encoder) error) error {
	if j.closed() {
		return ErrClosed
	}
	err := writeAtomic(j.path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := write(json.NewEncoder(bw)); err != nil {
			return err
		}
		return bw.Flush()
	})
	if err != nil {
		return err
	}
	_ = j.f.Close()
	j.f, j.lines = nil, n
	return j.reopen()
}

func (j *journal) truncate() error {
	return j.rewrite(0, func(*json.Encoder) error { return nil })
}

func (j *journal) close() error {
	if j.closed() {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

// writeAtomic writes path through a temp file and rename.
func writeAtomic(path string, write func(w io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readDoc(path string, v any) (bool, error) {
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, json.Unmarshal(b, v)
}

func writeDoc(path string, v any) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}
