package bcache

import "fmt"

// Policy decides which valid slot is reclaimed when every slot is in use.
type Policy int

const (
	// EvictLeastRecent reclaims the slot with the smallest recency stamp.
	EvictLeastRecent Policy = iota

	// EvictMostRecent reclaims the slot with the largest recency stamp, i.e.
	// the slot touched last.
	EvictMostRecent
)

func (p Policy) String() string {
	switch p {
	case EvictLeastRecent:
		return "lru"
	case EvictMostRecent:
		return "mru"
	default:
		panic(fmt.Sprintf("invalid eviction policy: %d", p))
	}
}

// ParsePolicy accepts the names produced by `Policy.String()`.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "lru", "":
		return EvictLeastRecent, nil
	case "mru":
		return EvictMostRecent, nil
	default:
		return 0, fmt.Errorf("parsing eviction policy `%s`: want `lru` or `mru`", s)
	}
}

// Decode implements `envconfig.Decoder`.
func (p *Policy) Decode(value string) error {
	parsed, err := ParsePolicy(value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p *Policy) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("yaml-unmarshaling *Policy: %w", err)
	}
	return p.Decode(s)
}

// better reports whether a slot stamped `candidate` should replace the
// current victim stamped `current`. Strict comparisons keep the lowest
// index on ties.
func (p Policy) better(candidate, current uint64) bool {
	if p == EvictMostRecent {
		return candidate > current
	}
	return candidate < current
}
