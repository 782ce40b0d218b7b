package models

import "fmt"

// Source identifies an upstream price feed. The numeric order is the
// metadata precedence used when merging.
type Source uint8

const (
	SourceDexScreener Source = iota + 1
	SourceGeckoTerminal
	SourceJupiter
)

// AllSources lists every known feed in precedence order.
var AllSources = []Source{SourceDexScreener, SourceGeckoTerminal, SourceJupiter}

func (s Source) String() string {
	switch s {
	case SourceDexScreener:
		return "dexscreener"
	case SourceGeckoTerminal:
		return "geckoterminal"
	case SourceJupiter:
		return "jupiter"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the declared feeds.
func (s Source) Valid() bool {
	return s >= SourceDexScreener && s <= SourceJupiter
}

// ParseSource maps a feed tag back to its Source.
func ParseSource(tag string) (Source, error) {
	for _, s := range AllSources {
		if s.String() == tag {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown source %q", tag)
}

func (s Source) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid source %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Source) UnmarshalText(b []byte) error {
	v, err := ParseSource(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
