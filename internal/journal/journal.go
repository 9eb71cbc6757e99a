package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/alanyoungcy/settled/internal/domain"
)

// Config controls where and how the journal is written.
type Config struct {
	Dir         string
	SegmentSize int64
	// Sync fsyncs after every append.
	Sync bool
}

const defaultSegmentSize = 64 << 20

// Journal appends commands to rotating segment files.
type Journal struct {
	mu       sync.Mutex
	dir      string
	segSize  int64
	sync     bool
	file     *os.File
	offset   int64
	segIndex int
	seq      uint64
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.wal", index))
}

func segments(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Open opens the journal in cfg.Dir, continuing after the last record
// already on disk.
func Open(cfg Config) (*Journal, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = defaultSegmentSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	files, err := segments(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	j := &Journal{dir: cfg.Dir, segSize: cfg.SegmentSize, sync: cfg.Sync}
	if len(files) > 0 {
		last := files[len(files)-1]
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(last), "segment-"), ".wal")
		if j.segIndex, err = strconv.Atoi(name); err != nil {
			return nil, fmt.Errorf("journal: open: segment name %s: %w", last, err)
		}
		seq, err := Replay(cfg.Dir, func(Record) error { return nil })
		if err != nil {
			return nil, fmt.Errorf("journal: open: %w", err)
		}
		j.seq = seq
		if err := trimTornTail(last); err != nil {
			return nil, fmt.Errorf("journal: open: %w", err)
		}
	}
	if err := j.openSegment(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) openSegment() error {
	f, err := os.OpenFile(segmentPath(j.dir, j.segIndex), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open segment %d: %w", j.segIndex, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("journal: stat segment %d: %w", j.segIndex, err)
	}
	j.file, j.offset = f, info.Size()
	return nil
}

// Append writes cmd and returns its sequence number.
func (j *Journal) Append(cmd domain.Command) (uint64, error) {
	t, err := typeByte(cmd.Type)
	if err != nil {
		return 0, err
	}
	data, err := encodeCommand(cmd)
	if err != nil {
		return 0, fmt.Errorf("journal: encode %s: %w", cmd.Type, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return 0, errors.New("journal: closed")
	}

	rec := Record{Type: t, Seq: j.seq + 1, Time: cmd.At.UnixNano(), Data: data}
	n, err := j.file.Write(rec.encode())
	if err != nil {
		return 0, fmt.Errorf("journal: append: %w", err)
	}
	if j.sync {
		if err := j.file.Sync(); err != nil {
			return 0, fmt.Errorf("journal: sync: %w", err)
		}
	}
	j.seq = rec.Seq
	j.offset += int64(n)
	if j.offset >= j.segSize {
		if err := j.rotate(); err != nil {
			return rec.Seq, err
		}
	}
	return rec.Seq, nil
}

func (j *Journal) rotate() error {
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("journal: rotate: %w", err)
	}
	j.segIndex++
	return j.openSegment()
}

// LastSeq returns the sequence number of the latest record.
func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// TruncateBefore removes closed segments whose records all have a
// sequence number at or below seq.
func (j *Journal) TruncateBefore(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	files, err := segments(j.dir)
	if err != nil {
		return err
	}
	current := segmentPath(j.dir, j.segIndex)
	for _, path := range files {
		if path == current {
			continue
		}
		last, err := lastSeqIn(path)
		if err != nil {
			return err
		}
		if last <= seq {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("journal: truncate: %w", err)
			}
		}
	}
	return nil
}

// Close closes the current segment.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

func lastSeqIn(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var last uint64
	for {
		rec, err := readRecord(f)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return last, nil
			}
			return last, err
		}
		last = rec.Seq
	}
}

// trimTornTail cuts a partially written record off the end of path so
// new appends start on a record boundary.
func trimTornTail(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	var valid int64
	for {
		rec, err := readRecord(f)
		if err != nil {
			break
		}
		valid += int64(headerSize + len(rec.Data) + 4)
	}
	info, err := f.Stat()
	f.Close()
	if err != nil {
		return err
	}
	if info.Size() == valid {
		return nil
	}
	return os.Truncate(path, valid)
}

var _ domain.CommandLog = (*Journal)(nil)
