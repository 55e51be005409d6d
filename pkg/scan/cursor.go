package scan

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"google.golang.org/protobuf/encoding/protowire"
)

// StartCursor starts a scan when passed in and marks a finished scan when returned.
const StartCursor = "0"

const compositePrefix = "c1."

// composite cursor payload fields
const (
	fieldPending  protowire.Number = 1
	fieldDone     protowire.Number = 2
	fieldReshaped protowire.Number = 3
	fieldChecksum protowire.Number = 15

	fieldShardID     protowire.Number = 1
	fieldShardCursor protowire.Number = 2
)

// ShardStatus is the progress of one shard within a scan.
type ShardStatus int

// A list of shard statuses.
const (
	NotStarted ShardStatus = iota
	InProgress
	Exhausted
)

func (s ShardStatus) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// ShardCursor is the native cursor of one pending shard.
type ShardCursor struct {
	Shard  string
	Cursor uint64
}

// Status is NotStarted for a zero cursor and InProgress otherwise. Exhausted shards are not pending.
func (c ShardCursor) Status() ShardStatus {
	if c.Cursor == 0 {
		return NotStarted
	}
	return InProgress
}

// State is the decoded form of a cursor. A simple state wraps one native cursor. A composite state holds
// the ordered pending shards (the head is the one being driven) and the shards already exhausted.
type State struct {
	Composite bool
	Native    uint64
	Pending   []ShardCursor
	Done      []string
	Reshaped  bool // the shard set changed since the scan started
}

// IsStart reports whether s is the state decoded from StartCursor.
func (s State) IsStart() bool {
	return !s.Composite && s.Native == 0
}

// IsTerminal reports whether s encodes to StartCursor.
func (s State) IsTerminal() bool {
	if s.Composite {
		return len(s.Pending) == 0
	}
	return s.Native == 0
}

// Current returns the shard driven by the next step.
func (s State) Current() (ShardCursor, bool) {
	if len(s.Pending) == 0 {
		return ShardCursor{}, false
	}
	return s.Pending[0], true
}

// ShardStatus returns the progress of shard. Shards the state does not know about are NotStarted.
func (s State) ShardStatus(shard string) ShardStatus {
	for _, id := range s.Done {
		if id == shard {
			return Exhausted
		}
	}
	for _, p := range s.Pending {
		if p.Shard == shard {
			return p.Status()
		}
	}
	return NotStarted
}

// IsTerminal reports whether cursor is exactly the start/terminal sentinel.
func IsTerminal(cursor string) bool {
	return cursor == StartCursor
}

// Encode serializes s. The output is deterministic for a given state.
func Encode(s State) string {
	if s.IsTerminal() {
		return StartCursor
	}
	if !s.Composite {
		return strconv.FormatUint(s.Native, 10)
	}

	var b []byte
	for _, p := range s.Pending {
		var entry []byte
		entry = protowire.AppendTag(entry, fieldShardID, protowire.BytesType)
		entry = protowire.AppendString(entry, p.Shard)
		entry = protowire.AppendTag(entry, fieldShardCursor, protowire.VarintType)
		entry = protowire.AppendVarint(entry, p.Cursor)
		b = protowire.AppendTag(b, fieldPending, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	for _, id := range s.Done {
		b = protowire.AppendTag(b, fieldDone, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}
	if s.Reshaped {
		b = protowire.AppendTag(b, fieldReshaped, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	sum := xxhash.Sum64(b)
	b = protowire.AppendTag(b, fieldChecksum, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, sum)

	return compositePrefix + base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a cursor produced by Encode. StartCursor decodes to the zero State.
func Decode(cursor string) (State, error) {
	if IsTerminal(cursor) {
		return State{}, nil
	}
	if strings.HasPrefix(cursor, compositePrefix) {
		return decodeComposite(cursor[len(compositePrefix):])
	}
	native, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil || strconv.FormatUint(native, 10) != cursor {
		return State{}, malformedf("cursor %q is neither numeric nor composite", cursor)
	}
	return State{Native: native}, nil
}

func decodeComposite(payload string) (State, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return State{}, malformedf("bad encoding: %v", err)
	}

	s := State{Composite: true}
	seen := make(map[string]struct{})
	addShard := func(id string) error {
		if id == "" {
			return malformedf("empty shard id")
		}
		if _, ok := seen[id]; ok {
			return malformedf("duplicate shard id %q", id)
		}
		seen[id] = struct{}{}
		return nil
	}

	checksummed := false
	for b := raw; len(b) > 0; {
		if checksummed {
			return State{}, malformedf("trailing bytes after checksum")
		}
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return State{}, malformedf("bad field tag: %v", protowire.ParseError(n))
		}
		offset := len(raw) - len(b)
		b = b[n:]

		switch {
		case num == fieldPending && typ == protowire.BytesType:
			entry, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return State{}, malformedf("bad shard entry: %v", protowire.ParseError(m))
			}
			b = b[m:]
			p, err := decodeShardCursor(entry)
			if err != nil {
				return State{}, err
			}
			if err := addShard(p.Shard); err != nil {
				return State{}, err
			}
			s.Pending = append(s.Pending, p)

		case num == fieldDone && typ == protowire.BytesType:
			id, m := protowire.ConsumeString(b)
			if m < 0 {
				return State{}, malformedf("bad done shard: %v", protowire.ParseError(m))
			}
			b = b[m:]
			if err := addShard(id); err != nil {
				return State{}, err
			}
			s.Done = append(s.Done, id)

		case num == fieldReshaped && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return State{}, malformedf("bad reshaped flag: %v", protowire.ParseError(m))
			}
			b = b[m:]
			s.Reshaped = v != 0

		case num == fieldChecksum && typ == protowire.Fixed64Type:
			sum, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return State{}, malformedf("bad checksum: %v", protowire.ParseError(m))
			}
			b = b[m:]
			if xxhash.Sum64(raw[:offset]) != sum {
				return State{}, malformedf("checksum mismatch")
			}
			checksummed = true

		default:
			return State{}, malformedf("unexpected field %d of type %d", num, typ)
		}
	}

	if !checksummed {
		return State{}, malformedf("missing checksum")
	}
	if len(s.Pending) == 0 {
		return State{}, malformedf("composite cursor without pending shard")
	}
	return s, nil
}

func decodeShardCursor(b []byte) (ShardCursor, error) {
	var (
		p         ShardCursor
		hasShard  bool
		hasCursor bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ShardCursor{}, malformedf("bad shard field tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldShardID && typ == protowire.BytesType && !hasShard:
			id, m := protowire.ConsumeString(b)
			if m < 0 {
				return ShardCursor{}, malformedf("bad shard id: %v", protowire.ParseError(m))
			}
			b = b[m:]
			p.Shard, hasShard = id, true
		case num == fieldShardCursor && typ == protowire.VarintType && !hasCursor:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return ShardCursor{}, malformedf("bad shard cursor: %v", protowire.ParseError(m))
			}
			b = b[m:]
			p.Cursor, hasCursor = v, true
		default:
			return ShardCursor{}, malformedf("unexpected shard field %d of type %d", num, typ)
		}
	}
	if !hasShard || !hasCursor {
		return ShardCursor{}, malformedf("incomplete shard entry")
	}
	return p, nil
}
