package filtering

import (
	"log/slog"
)

// Action represents the filtering decision for a zone.
type Action int

const (
	// ActionAllow deploys the zone.
	ActionAllow Action = iota
	// ActionBlock leaves the zone out of generated configuration.
	ActionBlock
)

// String returns a string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionBlock:
		return "block"
	default:
		return "unknown"
	}
}

// PolicyResult contains the result of a policy evaluation.
type PolicyResult struct {
	Action   Action
	Rule     string // which rule matched (for logging)
	ListName string // which list matched (for logging)
}

// Policy decides which zones take part in a deployment.
//
// A non-empty whitelist must match for a zone to be allowed. A blacklist
// match always blocks, even when the whitelist matched too.
type Policy struct {
	logger    *slog.Logger
	whitelist *List
	blacklist *List
}

// NewPolicy creates a policy from optional lists; nil lists are empty.
func NewPolicy(whitelist, blacklist *List, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{logger: logger, whitelist: whitelist, blacklist: blacklist}
}

// LoadPolicy reads whitelist and blacklist files. Empty paths mean no list.
func LoadPolicy(whitelistPath, blacklistPath string, logger *slog.Logger) (*Policy, error) {
	p := NewParser()
	var wl, bl *List
	var err error
	if whitelistPath != "" {
		if wl, err = p.ParseFile(whitelistPath); err != nil {
			return nil, err
		}
	}
	if blacklistPath != "" {
		if bl, err = p.ParseFile(blacklistPath); err != nil {
			return nil, err
		}
	}
	return NewPolicy(wl, bl, logger), nil
}

// Evaluate checks a zone name against the policy.
func (p *Policy) Evaluate(zone string) PolicyResult {
	if p == nil {
		return PolicyResult{Action: ActionAllow}
	}

	if p.whitelist.Len() > 0 {
		if _, ok := p.whitelist.Match(zone); !ok {
			p.logger.Debug("Zone not whitelisted", "zone", zone)
			return PolicyResult{Action: ActionBlock, ListName: "whitelist"}
		}
	}

	if rule, ok := p.blacklist.Match(zone); ok {
		p.logger.Info("Zone blacklisted", "zone", zone, "rule", rule.Pattern)
		return PolicyResult{
			Action:   ActionBlock,
			Rule:     rule.Pattern,
			ListName: "blacklist",
		}
	}

	return PolicyResult{Action: ActionAllow}
}

// Allowed is shorthand for Evaluate(zone).Action == ActionAllow.
func (p *Policy) Allowed(zone string) bool {
	return p.Evaluate(zone).Action == ActionAllow
}
