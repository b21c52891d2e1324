package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/port"
	"github.com/alexisbeaulieu97/opgraph/internal/scheduler"
)

// RecordVersion is written into every record.
const RecordVersion = "1"

// Record is the stored form of a scheduler.Checkpoint. Absent outputs are nil.
type Record struct {
	Version     string                       `msgpack:"version"`
	RunID       string                       `msgpack:"run_id"`
	Node        int                          `msgpack:"node"`
	Label       string                       `msgpack:"label"`
	Opcode      string                       `msgpack:"opcode"`
	Outputs     [port.MaxPorts]*port.Encoded `msgpack:"outputs"`
	CompletedAt time.Time                    `msgpack:"completed_at"`
	Checksum    string                       `msgpack:"checksum"`
}

// FromCheckpoint converts a checkpoint into a record with its checksum set.
func FromCheckpoint(cp scheduler.Checkpoint) (Record, error) {
	rec := Record{
		Version:     RecordVersion,
		RunID:       cp.RunID,
		Node:        cp.Node,
		Label:       cp.Label,
		Opcode:      string(cp.Opcode),
		CompletedAt: cp.CompletedAt,
	}
	for i, v := range cp.Outputs {
		if v == nil {
			continue
		}
		enc, err := port.Encode(v)
		if err != nil {
			return Record{}, fmt.Errorf("output %d: %w", i, err)
		}
		rec.Outputs[i] = &enc
	}
	sum, err := rec.checksum()
	if err != nil {
		return Record{}, err
	}
	rec.Checksum = sum
	return rec, nil
}

// Verify recomputes the checksum.
func (r Record) Verify() error {
	sum, err := r.checksum()
	if err != nil {
		return err
	}
	if sum != r.Checksum {
		return fmt.Errorf("checksum mismatch for run %s node %d", r.RunID, r.Node)
	}
	return nil
}

// DecodeOutputs rebuilds the node's outputs.
func (r Record) DecodeOutputs() (operator.Outputs, error) {
	var out operator.Outputs
	for i, enc := range r.Outputs {
		if enc == nil {
			continue
		}
		v, err := port.Decode(*enc)
		if err != nil {
			return operator.Outputs{}, fmt.Errorf("output %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (r Record) checksum() (string, error) {
	data, err := msgpack.Marshal(struct {
		RunID   string
		Node    int
		Opcode  string
		Outputs [port.MaxPorts]*port.Encoded
	}{r.RunID, r.Node, r.Opcode, r.Outputs})
	if err != nil {
		return "", fmt.Errorf("checksum encode: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
