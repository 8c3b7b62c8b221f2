package domain

import "math"

// DeltaKind classifies a change on one PositionKey.
type DeltaKind int

const (
	DeltaOpened DeltaKind = iota
	DeltaIncreased
	DeltaDecreased
	DeltaClosed
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaOpened:
		return "opened"
	case DeltaIncreased:
		return "increased"
	case DeltaDecreased:
		return "decreased"
	case DeltaClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ReducesExposure is true for deltas that can only shrink a replica position.
func (k DeltaKind) ReducesExposure() bool {
	return k == DeltaDecreased || k == DeltaClosed
}

// PositionDelta is a change on one key between a baseline and a fresh snapshot.
// Position carries the new line, or the old one for DeltaClosed.
type PositionDelta struct {
	Key      PositionKey
	Kind     DeltaKind
	OldQty   float64
	NewQty   float64
	Position Position
}

// Change is the signed trader-side quantity change.
func (d PositionDelta) Change() float64 {
	return d.NewQty - d.OldQty
}

// Diff compares two snapshots of the same trader. Output is sorted by key and
// does not depend on map iteration order. A sign flip on one key becomes a
// close of the old line followed by an open of the new one.
func Diff(old, cur PositionSnapshot) []PositionDelta {
	seen := make(map[PositionKey]struct{}, len(old.positions)+len(cur.positions))
	keys := make([]PositionKey, 0, len(old.positions)+len(cur.positions))
	for k := range old.positions {
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for k := range cur.positions {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sortKeys(keys)

	var deltas []PositionDelta
	for _, k := range keys {
		o, hadOld := old.positions[k]
		n, hasNew := cur.positions[k]

		switch {
		case hadOld && !hasNew:
			deltas = append(deltas, closed(o))
		case !hadOld && hasNew:
			deltas = append(deltas, opened(n))
		case o.Size == n.Size:
			// sin cambio
		case o.Size*n.Size < 0:
			deltas = append(deltas, closed(o), opened(n))
		default:
			kind := DeltaDecreased
			if math.Abs(n.Size) > math.Abs(o.Size) {
				kind = DeltaIncreased
			}
			deltas = append(deltas, PositionDelta{
				Key:      k,
				Kind:     kind,
				OldQty:   o.Size,
				NewQty:   n.Size,
				Position: n,
			})
		}
	}
	return deltas
}

// Apply replays deltas on top of old. Apply(old, Diff(old, cur)) holds the same
// lines as cur.
func Apply(old PositionSnapshot, deltas []PositionDelta) PositionSnapshot {
	m := make(map[PositionKey]Position, len(old.positions))
	for k, p := range old.positions {
		m[k] = p
	}
	for _, d := range deltas {
		switch d.Kind {
		case DeltaClosed:
			delete(m, d.Key)
		default:
			p := d.Position
			p.Size = d.NewQty
			m[d.Key] = p
		}
	}
	return PositionSnapshot{trader: old.trader, capturedAt: old.capturedAt, positions: m}
}

func opened(p Position) PositionDelta {
	return PositionDelta{Key: p.Key, Kind: DeltaOpened, NewQty: p.Size, Position: p}
}

func closed(p Position) PositionDelta {
	return PositionDelta{Key: p.Key, Kind: DeltaClosed, OldQty: p.Size, Position: p}
}
