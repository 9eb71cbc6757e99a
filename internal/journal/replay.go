package journal

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alanyoungcy/settled/internal/domain"
)

// Replay calls fn for every record in dir in sequence order and returns
// the last sequence number seen. A record torn by a crash at the end of
// the newest segment ends the replay without error; anywhere else it is
// reported.
func Replay(dir string, fn func(Record) error) (uint64, error) {
	files, err := segments(dir)
	if err != nil {
		return 0, err
	}
	var last uint64
	for i, path := range files {
		newest := i == len(files)-1
		if err := replaySegment(path, newest, &last, fn); err != nil {
			return last, err
		}
	}
	return last, nil
}

func replaySegment(path string, newest bool, last *uint64, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for {
		rec, err := readRecord(f)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF) && newest:
			return nil
		case err != nil:
			return fmt.Errorf("journal: %s after seq %d: %w", path, *last, err)
		}
		if rec.Seq <= *last {
			return fmt.Errorf("journal: %s: non-monotonic seq %d after %d", path, rec.Seq, *last)
		}
		*last = rec.Seq
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// Commands decodes every command in dir, oldest first.
func Commands(dir string) ([]domain.Command, error) {
	var cmds []domain.Command
	_, err := Replay(dir, func(rec Record) error {
		cmd, err := decodeCommand(rec.Data)
		if err != nil {
			return fmt.Errorf("journal: decode seq %d: %w", rec.Seq, err)
		}
		cmds = append(cmds, cmd)
		return nil
	})
	return cmds, err
}
