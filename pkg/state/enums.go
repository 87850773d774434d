package state

import "github.com/krowlandson/AzureStateManager/pkg/arm"

// CacheMode and Release are shared with the request layer.
type (
	CacheMode = arm.CacheMode
	Release   = arm.Release
)

const (
	UseCache  = arm.UseCache
	SkipCache = arm.SkipCache

	ReleaseStable = arm.ReleaseStable
	ReleaseLatest = arm.ReleaseLatest
)

// DiscoveryMode selects which access-control and governance aspects are
// fetched alongside a node's configuration.
type DiscoveryMode int

const (
	ExcludeBoth DiscoveryMode = iota
	IncludeIAM
	IncludePolicy
	IncludeBoth
)

func (m DiscoveryMode) String() string {
	switch m {
	case IncludeIAM:
		return "IncludeIAM"
	case IncludePolicy:
		return "IncludePolicy"
	case IncludeBoth:
		return "IncludeBoth"
	}
	return "ExcludeBoth"
}

// IAM reports whether the mode requests role definitions and assignments.
func (m DiscoveryMode) IAM() bool {
	return m == IncludeIAM || m == IncludeBoth
}

// Policy reports whether the mode requests policy records.
func (m DiscoveryMode) Policy() bool {
	return m == IncludePolicy || m == IncludeBoth
}

// Union combines two modes; aspects accumulate, they never retract.
func (m DiscoveryMode) Union(other DiscoveryMode) DiscoveryMode {
	return discoveryMode(m.IAM() || other.IAM(), m.Policy() || other.Policy())
}

// Covers reports whether every aspect requested by other is already part of m.
func (m DiscoveryMode) Covers(other DiscoveryMode) bool {
	return (!other.IAM() || m.IAM()) && (!other.Policy() || m.Policy())
}

func discoveryMode(iam, policy bool) DiscoveryMode {
	switch {
	case iam && policy:
		return IncludeBoth
	case iam:
		return IncludeIAM
	case policy:
		return IncludePolicy
	}
	return ExcludeBoth
}
