package scan

import (
	"strconv"
	"strings"
)

// KeyType is a value type understood by the store's TYPE scan filter.
type KeyType string

// A list of key types.
const (
	TypeString KeyType = "string"
	TypeList   KeyType = "list"
	TypeSet    KeyType = "set"
	TypeZSet   KeyType = "zset"
	TypeHash   KeyType = "hash"
	TypeStream KeyType = "stream"
)

var keyTypes = map[KeyType]struct{}{
	TypeString: {},
	TypeList:   {},
	TypeSet:    {},
	TypeZSet:   {},
	TypeHash:   {},
	TypeStream: {},
}

// ParseKeyType parses a key type name case-insensitively. An empty name means no type filter.
func ParseKeyType(s string) (KeyType, error) {
	t := KeyType(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return "", nil
	}
	if _, ok := keyTypes[t]; !ok {
		return "", invalidArgf("unknown key type %q", s)
	}
	return t, nil
}

// Filter is the per-call scan configuration: match pattern, type filter and count hint.
// The zero value matches every key of every type and sends no count hint.
type Filter struct {
	match    string
	keyType  KeyType
	count    int64
	countSet bool
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithMatch sets the glob-style pattern keys must match.
func WithMatch(pattern string) FilterOption {
	return func(f *Filter) {
		f.match = pattern
	}
}

// WithType restricts the scan to keys holding values of type t. The name is case-insensitive.
func WithType(t KeyType) FilterOption {
	return func(f *Filter) {
		f.keyType = KeyType(strings.ToLower(strings.TrimSpace(string(t))))
	}
}

// WithCount sets the count hint passed to the store. It is advisory: a batch may hold more or fewer keys.
func WithCount(count int64) FilterOption {
	return func(f *Filter) {
		f.count = count
		f.countSet = true
	}
}

// NewFilter builds and validates a Filter.
func NewFilter(opts ...FilterOption) (Filter, error) {
	var f Filter
	for _, opt := range opts {
		opt(&f)
	}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// MustFilter is like NewFilter but panics on invalid options.
func MustFilter(opts ...FilterOption) Filter {
	f, err := NewFilter(opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// Validate fails with ErrInvalidScanArgument on a non-positive count hint or an unknown type.
func (f Filter) Validate() error {
	if f.countSet && f.count <= 0 {
		return invalidArgf("count hint must be positive, got %d", f.count)
	}
	if f.keyType != "" {
		if _, ok := keyTypes[f.keyType]; !ok {
			return invalidArgf("unknown key type %q", string(f.keyType))
		}
	}
	return nil
}

// Match returns the match pattern, empty when every key matches.
func (f Filter) Match() string {
	return f.match
}

// Type returns the type filter, empty when there is none.
func (f Filter) Type() KeyType {
	return f.keyType
}

// Count returns the count hint and whether one was set.
func (f Filter) Count() (int64, bool) {
	return f.count, f.countSet
}

// withDefaultCount returns f with count as hint when f carries none.
func (f Filter) withDefaultCount(count int64) Filter {
	if f.countSet || count <= 0 {
		return f
	}
	f.count, f.countSet = count, true
	return f
}

func (f Filter) String() string {
	var sb strings.Builder
	sb.WriteString("match=")
	sb.WriteString(f.match)
	sb.WriteString("|type=")
	sb.WriteString(string(f.keyType))
	if f.countSet {
		sb.WriteString("|count=")
		sb.WriteString(strconv.FormatInt(f.count, 10))
	}
	return sb.String()
}
