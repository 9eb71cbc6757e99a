// Package journal is an append-only, segmented command log. Each record
// is framed as
//
//	[type:1][seq:8][time:8][len:4][payload][crc:4]
//
// with a CRC-32 over everything before the checksum. Payloads are
// protobuf-encoded google.protobuf.Struct values.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/settled/internal/domain"
)

const headerSize = 1 + 8 + 8 + 4

// ErrCorrupt reports a record whose checksum does not match.
var ErrCorrupt = errors.New("journal: corrupt record")

// commandTypes fixes the on-disk type byte of every command. Append only.
var commandTypes = []domain.CommandType{
	domain.CmdCreateMarket,
	domain.CmdPlaceOrder,
	domain.CmdCancelOrder,
	domain.CmdSellShares,
	domain.CmdResolute,
	domain.CmdDispute,
	domain.CmdWithdraw,
	domain.CmdFinalize,
	domain.CmdClaim,
	domain.CmdMint,
}

func typeByte(t domain.CommandType) (byte, error) {
	for i, ct := range commandTypes {
		if ct == t {
			return byte(i + 1), nil
		}
	}
	return 0, fmt.Errorf("journal: unknown command type %q", t)
}

// Record is one framed journal entry.
type Record struct {
	Type byte
	Seq  uint64
	Time int64
	Data []byte
}

func (r Record) encode() []byte {
	n := uint32(len(r.Data))
	buf := make([]byte, headerSize+int(n)+4)
	buf[0] = r.Type
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], n)
	copy(buf[headerSize:], r.Data)
	binary.BigEndian.PutUint32(buf[headerSize+int(n):], crc32.ChecksumIEEE(buf[:headerSize+int(n)]))
	return buf
}

// readRecord reads one record. A record cut short by a crash surfaces as
// io.ErrUnexpectedEOF.
func readRecord(r io.Reader) (Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Record{}, err
	}
	n := binary.BigEndian.Uint32(header[17:21])
	body := make([]byte, int(n)+4)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, err
	}
	sum := binary.BigEndian.Uint32(body[n:])
	h := crc32.NewIEEE()
	h.Write(header)
	h.Write(body[:n])
	if h.Sum32() != sum {
		return Record{}, ErrCorrupt
	}
	return Record{
		Type: header[0],
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: body[:n],
	}, nil
}

// encodeCommand renders cmd as a protobuf Struct. Amounts travel as JSON
// strings so they survive the Struct's float64 numbers intact.
func encodeCommand(cmd domain.Command) ([]byte, error) {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func decodeCommand(data []byte) (domain.Command, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return domain.Command{}, err
	}
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return domain.Command{}, err
	}
	var cmd domain.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return domain.Command{}, err
	}
	return cmd, nil
}
