package semver

import (
	"errors"
	"fmt"
)

// ErrUnknownChannel marks a branch with no entry in the channel table.
// Such branches must never reach the policy engine.
var ErrUnknownChannel = errors.New("branch is not a release channel")

// BumpRule names one entry of the policy table.
type BumpRule string

const (
	BumpPatch BumpRule = "patch"
	BumpMinor BumpRule = "minor"
)

// ParseBumpRule validates a rule name from configuration.
func ParseBumpRule(s string) (BumpRule, error) {
	switch BumpRule(s) {
	case BumpPatch, BumpMinor:
		return BumpRule(s), nil
	default:
		return "", fmt.Errorf("unknown bump rule %q", s)
	}
}

// Apply returns the bumped version. Patch increments only the patch field;
// minor increments minor and resets patch to zero.
func (r BumpRule) Apply(v Version) Version {
	switch r {
	case BumpMinor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
}

// Policy maps release branches to bump rules. It is an explicit dispatch
// table so new channels are configuration, not new conditionals.
type Policy struct {
	channels map[string]BumpRule
}

// NewPolicy builds a policy from a branch → rule table.
func NewPolicy(channels map[string]BumpRule) *Policy {
	table := make(map[string]BumpRule, len(channels))
	for branch, rule := range channels {
		table[branch] = rule
	}
	return &Policy{channels: table}
}

// IsReleaseBranch reports whether branch has a channel entry.
func (p *Policy) IsReleaseBranch(branch string) bool {
	_, ok := p.channels[branch]
	return ok
}

// Rule returns branch's bump rule and whether branch is a channel.
func (p *Policy) Rule(branch string) (BumpRule, bool) {
	rule, ok := p.channels[branch]
	return rule, ok
}

// Plan is the output of the policy engine: the version transition and the
// tags on either side of it. Pure data; nothing is persisted until the
// publisher's persist step.
type Plan struct {
	Branch        string
	Rule          BumpRule
	VersionBefore Version
	VersionAfter  Version
}

// TagBefore is the tag of the version being superseded. Empty when no prior
// release exists (0.0.0 descriptor).
func (p Plan) TagBefore() string {
	if p.VersionBefore == (Version{}) {
		return ""
	}
	return p.VersionBefore.Tag()
}

// TagAfter is the tag the run will create.
func (p Plan) TagAfter() string {
	return p.VersionAfter.Tag()
}

// NextVersion computes the release plan for branch given the current
// version. Deterministic and side-effect free: calling it again with the
// same inputs yields an identical plan until the descriptor is persisted.
func (p *Policy) NextVersion(branch string, current Version) (Plan, error) {
	rule, ok := p.channels[branch]
	if !ok {
		return Plan{}, fmt.Errorf("next version for %q: %w", branch, ErrUnknownChannel)
	}
	return Plan{
		Branch:        branch,
		Rule:          rule,
		VersionBefore: current,
		VersionAfter:  rule.Apply(current),
	}, nil
}
