// Package bucket encodes contract state into the three named JSON payloads
// that durable backends store side by side.
package bucket

import (
	"encoding/json"
	"fmt"

	"tracefood/pkg/domain"
)

// Bucket names. Each holds one top-level slot of the contract state.
const (
	StageTransitions = "stage_transitions"
	Lots             = "lots"
	LotIDs           = "lot_ids"
)

// Names lists the buckets in write order.
var Names = []string{StageTransitions, Lots, LotIDs}

// Entry is one encoded bucket.
type Entry struct {
	Name    string
	Payload []byte
}

// Encode marshals each slot of the snapshot. A nil stage registry encodes as
// JSON null so an uninitialized contract survives a reload.
func Encode(snapshot domain.Snapshot) ([]Entry, error) {
	snapshot = domain.CloneSnapshot(snapshot)
	out := make([]Entry, 0, len(Names))
	for _, name := range Names {
		var (
			data []byte
			err  error
		)
		switch name {
		case StageTransitions:
			data, err = json.Marshal(snapshot.StageTransitions)
		case Lots:
			data, err = json.Marshal(snapshot.Lots)
		case LotIDs:
			data, err = json.Marshal(snapshot.LotIDs)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out = append(out, Entry{Name: name, Payload: data})
	}
	return out, nil
}

// Decode rebuilds a snapshot from stored payloads keyed by bucket name.
// Unknown buckets and empty payloads are ignored.
func Decode(payloads map[string][]byte) (domain.Snapshot, error) {
	var snapshot domain.Snapshot
	targets := map[string]any{
		StageTransitions: &snapshot.StageTransitions,
		Lots:             &snapshot.Lots,
		LotIDs:           &snapshot.LotIDs,
	}
	for name, payload := range payloads {
		target, ok := targets[name]
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return domain.Snapshot{}, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return snapshot, nil
}
