package journal

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
)

var at = time.Date(2026, 5, 1, 9, 0, 0, 123, time.UTC)

func sampleCommands() []domain.Command {
	yes := domain.Outcome(0)
	invalid := domain.InvalidOutcome
	return []domain.Command{
		{Type: domain.CmdMint, Caller: "admin", At: at, Account: "alice", Amount: 9_007_199_254_740_993},
		{Type: domain.CmdCreateMarket, Caller: "creator", At: at, MarketID: 1, Spec: &domain.MarketSpec{
			Description: "Will it rain?", Outcomes: 3, Tags: []string{"yes", "no", "maybe"},
			EndTime: at.Add(24 * time.Hour), CreatorFeePct: 2, AffiliateFeePct: 10,
		}},
		{Type: domain.CmdPlaceOrder, Caller: "alice", At: at.Add(time.Second), MarketID: 1, Outcome: &yes, Amount: 5_000, Price: 60, Affiliate: "aff"},
		{Type: domain.CmdFinalize, Caller: "judge", At: at.Add(time.Hour), MarketID: 1, Outcome: &invalid},
		{Type: domain.CmdClaim, Caller: "bob", At: at.Add(2 * time.Hour), MarketID: 1, Account: "alice"},
	}
}

func openJournal(t *testing.T, dir string, segSize int64) *Journal {
	t.Helper()
	j, err := Open(Config{Dir: dir, SegmentSize: segSize})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndReadBack(t *testing.T) {
	dir := t.TempDir()
	j := openJournal(t, dir, 0)
	want := sampleCommands()
	for i, cmd := range want {
		seq, err := j.Append(cmd)
		if err != nil {
			t.Fatal(err)
		}
		if seq != uint64(i+1) {
			t.Fatalf("seq = %d, want %d", seq, i+1)
		}
	}

	got, err := Commands(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("read %d commands, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].At.Equal(want[i].At) {
			t.Fatalf("command %d at %v, want %v", i, got[i].At, want[i].At)
		}
		got[i].At = want[i].At
		if got[i].Spec != nil {
			got[i].Spec.EndTime = want[i].Spec.EndTime
		}
		if !reflect.DeepEqual(got[i], want[i]) {
			t.Fatalf("command %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReopenContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	j := openJournal(t, dir, 0)
	for _, cmd := range sampleCommands()[:2] {
		if _, err := j.Append(cmd); err != nil {
			t.Fatal(err)
		}
	}
	j.Close()

	j2 := openJournal(t, dir, 0)
	if j2.LastSeq() != 2 {
		t.Fatalf("last seq = %d, want 2", j2.LastSeq())
	}
	seq, err := j2.Append(sampleCommands()[2])
	if err != nil {
		t.Fatal(err)
	}
	if seq != 3 {
		t.Fatalf("seq = %d, want 3", seq)
	}
}

func TestRotationAndTruncate(t *testing.T) {
	dir := t.TempDir()
	j := openJournal(t, dir, 64)
	for range 6 {
		if _, err := j.Append(sampleCommands()[2]); err != nil {
			t.Fatal(err)
		}
	}
	files, _ := segments(dir)
	if len(files) < 3 {
		t.Fatalf("segments = %d, want rotation past 64 bytes", len(files))
	}

	if err := j.TruncateBefore(3); err != nil {
		t.Fatal(err)
	}
	var seqs []uint64
	if _, err := Replay(dir, func(r Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(seqs) == 0 || seqs[0] != 4 || seqs[len(seqs)-1] != 6 {
		t.Fatalf("remaining seqs = %v, want 4..6", seqs)
	}
}

func TestTornTailIsDropped(t *testing.T) {
	dir := t.TempDir()
	j := openJournal(t, dir, 0)
	for _, cmd := range sampleCommands()[:3] {
		if _, err := j.Append(cmd); err != nil {
			t.Fatal(err)
		}
	}
	j.Close()

	path := segmentPath(dir, 0)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, info.Size()-5); err != nil {
		t.Fatal(err)
	}

	j2 := openJournal(t, dir, 0)
	if j2.LastSeq() != 2 {
		t.Fatalf("last seq = %d, want 2 after losing the torn record", j2.LastSeq())
	}
	if _, err := j2.Append(sampleCommands()[3]); err != nil {
		t.Fatal(err)
	}
	cmds, err := Commands(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 3 || cmds[2].Type != domain.CmdFinalize {
		t.Fatalf("commands after repair = %+v", cmds)
	}
}

func TestCorruptRecordIsReported(t *testing.T) {
	dir := t.TempDir()
	j := openJournal(t, dir, 0)
	for _, cmd := range sampleCommands()[:2] {
		if _, err := j.Append(cmd); err != nil {
			t.Fatal(err)
		}
	}
	j.Close()

	path := filepath.Join(dir, "segment-000000.wal")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[headerSize+2] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Commands(dir); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestUnknownCommandType(t *testing.T) {
	j := openJournal(t, t.TempDir(), 0)
	if _, err := j.Append(domain.Command{Type: "bogus"}); err == nil {
		t.Fatal("appended an unknown command type")
	}
}
