package classify

import (
	"fmt"
	"strings"
)

// NeutralizedPolicy decides whether neutralized stages count toward total time.
type NeutralizedPolicy string

const (
	NeutralizedInclude NeutralizedPolicy = "include"
	NeutralizedExclude NeutralizedPolicy = "exclude"
)

// NegativeTimePolicy decides what a negative adjusted time contributes.
// Both options flag the cell.
type NegativeTimePolicy string

const (
	NegativePreserve NegativeTimePolicy = "preserve"
	NegativeClamp    NegativeTimePolicy = "clamp"
)

// UntimedPolicy places vehicles without any counted stage.
type UntimedPolicy string

const (
	UntimedLast    UntimedPolicy = "last"
	UntimedExclude UntimedPolicy = "exclude"
)

type Policy struct {
	Neutralized  NeutralizedPolicy  `json:"neutralized" yaml:"neutralized"`
	NegativeTime NegativeTimePolicy `json:"negativeTime" yaml:"negativeTime"`
	Untimed      UntimedPolicy      `json:"untimed" yaml:"untimed"`
}

func DefaultPolicy() Policy {
	return Policy{Neutralized: NeutralizedInclude, NegativeTime: NegativePreserve, Untimed: UntimedLast}
}

// ParsePolicy builds a Policy from its textual settings. Empty values keep the default.
func ParsePolicy(neutralized, negativeTime, untimed string) (Policy, error) {
	p := DefaultPolicy()
	switch v := NeutralizedPolicy(strings.ToLower(strings.TrimSpace(neutralized))); v {
	case "":
	case NeutralizedInclude, NeutralizedExclude:
		p.Neutralized = v
	default:
		return p, fmt.Errorf("invalid neutralized policy: %q (allowed: include,exclude)", neutralized)
	}
	switch v := NegativeTimePolicy(strings.ToLower(strings.TrimSpace(negativeTime))); v {
	case "":
	case NegativePreserve, NegativeClamp:
		p.NegativeTime = v
	default:
		return p, fmt.Errorf("invalid negative time policy: %q (allowed: preserve,clamp)", negativeTime)
	}
	switch v := UntimedPolicy(strings.ToLower(strings.TrimSpace(untimed))); v {
	case "":
	case UntimedLast, UntimedExclude:
		p.Untimed = v
	default:
		return p, fmt.Errorf("invalid untimed policy: %q (allowed: last,exclude)", untimed)
	}
	return p, nil
}
