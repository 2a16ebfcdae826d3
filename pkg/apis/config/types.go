/*
Copyright 2026 The Cocotabled Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config holds the typed settings and resource-catalog record shapes the
// arbitration core consumes. Nothing in this package parses YAML or sysfs topology
// itself; it is the boundary type layer the (out-of-scope) config loader populates.
package config

import "fmt"

// Policy selects how a resource's live requests are ordered and how arbitration
// picks a winner among same-priority requests.
type Policy int

const (
	// PolicyHigherBetter orders a priority-class slot so the largest comparator value
	// leads.
	PolicyHigherBetter Policy = iota
	// PolicyLowerBetter orders a priority-class slot so the smallest comparator value
	// leads.
	PolicyLowerBetter
	// PolicyLazyApply always appends new requests at the tail; the head never changes
	// as a result of a later insert.
	PolicyLazyApply
	// PolicyInstantApply always prepends new requests at the head.
	PolicyInstantApply
)

func (p Policy) String() string {
	switch p {
	case PolicyHigherBetter:
		return "HIGHER_BETTER"
	case PolicyLowerBetter:
		return "LOWER_BETTER"
	case PolicyLazyApply:
		return "LAZY_APPLY"
	case PolicyInstantApply:
		return "INSTANT_APPLY"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Scope is the partitioning dimension over which conflicting requests for the same
// resource arbitrate independently.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopePerCore
	ScopePerCluster
	ScopePerCgroup
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "GLOBAL"
	case ScopePerCore:
		return "PER_CORE"
	case ScopePerCluster:
		return "PER_CLUSTER"
	case ScopePerCgroup:
		return "PER_CGROUP"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// Permission is the issuing side's trust class; it affects which PriorityClass
// values a request's caller may legitimately assert (checked by the ingress layer,
// not by the core) and is carried for audit.
type Permission int

const (
	PermissionSystem Permission = iota
	PermissionThirdParty
)

func (p Permission) String() string {
	if p == PermissionSystem {
		return "SYSTEM"
	}
	return "THIRD_PARTY"
}

// Mode is the device display/suspend state. Multiple bits may be set to indicate a
// multi-state transition in progress; consumers treat the flag as a mask.
type Mode uint32

const (
	ModeDisplayOn  Mode = 1 << 0
	ModeDisplayOff Mode = 1 << 1
	ModeDoze       Mode = 1 << 2
)

// Intersects reports whether m shares any bit with mask; an empty mask always
// intersects, which mirrors resources that declare no mode gate at all (always
// honored regardless of current mode — see ResourceConfig.ModeMask).
func (m Mode) Intersects(mask Mode) bool {
	if mask == 0 {
		return true
	}
	return m&mask != 0
}

func (m Mode) String() string {
	if m == 0 {
		return "NONE"
	}
	s := ""
	if m&ModeDisplayOn != 0 {
		s += "DISPLAY_ON|"
	}
	if m&ModeDisplayOff != 0 {
		s += "DISPLAY_OFF|"
	}
	if m&ModeDoze != 0 {
		s += "DOZE|"
	}
	if s == "" {
		return fmt.Sprintf("Mode(%d)", uint32(m))
	}
	return s[:len(s)-1]
}

// PriorityClass is ordered so that the numerically smallest value is the most
// preferred. SystemHigh always wins over any THIRD_PARTY request.
type PriorityClass int

const (
	PrioritySystemHigh PriorityClass = iota
	PrioritySystemLow
	PriorityThirdPartyHigh
	PriorityThirdPartyLow

	// NumPriorityClasses is the fixed width of every per-(resource,scope) slot group;
	// the secondary_index arithmetic in the arbitration table depends on this being 4.
	NumPriorityClasses = 4
	// PriorityUnset marks a (resource, scope) pair with no currently applied
	// priority class (every list for it is empty).
	PriorityUnset PriorityClass = -1
)

func (p PriorityClass) String() string {
	switch p {
	case PrioritySystemHigh:
		return "SYSTEM_HIGH"
	case PrioritySystemLow:
		return "SYSTEM_LOW"
	case PriorityThirdPartyHigh:
		return "THIRD_PARTY_HIGH"
	case PriorityThirdPartyLow:
		return "THIRD_PARTY_LOW"
	case PriorityUnset:
		return "UNSET"
	default:
		return fmt.Sprintf("PriorityClass(%d)", int(p))
	}
}

// MorePreferredThan reports whether p wins over other when both are live for the
// same (resource, scope): smaller enum value wins.
func (p PriorityClass) MorePreferredThan(other PriorityClass) bool {
	return p < other
}

// Direction controls the order a request's granted resources are torn down in.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionReverse
)

// ResourceCode is the 32-bit packed identity described in spec §3: low 16 bits are
// ResID, next 8 bits are ResType, and the top bit flags a vendor extension.
type ResourceCode uint32

const (
	resIDMask     = 0x0000FFFF
	resTypeShift  = 16
	resTypeMask   = 0x000000FF
	vendorBit     = uint32(1) << 31
	maxResID      = 0xFFFF
	maxResType    = 0xFF
)

// MakeResourceCode packs a (resType, resID) pair into a ResourceCode, optionally
// flagging it as a vendor extension so it can coexist with a non-vendor resource
// sharing the same (resType, resID).
func MakeResourceCode(resType, resID int, vendor bool) (ResourceCode, error) {
	if resID < 0 || resID > maxResID {
		return 0, fmt.Errorf("resID %d out of range [0,%d]", resID, maxResID)
	}
	if resType < 0 || resType > maxResType {
		return 0, fmt.Errorf("resType %d out of range [0,%d]", resType, maxResType)
	}
	code := uint32(resID)&resIDMask | (uint32(resType)&resTypeMask)<<resTypeShift
	if vendor {
		code |= vendorBit
	}
	return ResourceCode(code), nil
}

// ResID returns the low 16 bits of the packed code.
func (c ResourceCode) ResID() int { return int(uint32(c) & resIDMask) }

// ResType returns the 8-bit type field.
func (c ResourceCode) ResType() int { return int((uint32(c) >> resTypeShift) & resTypeMask) }

// IsVendor reports whether the high bit flagging a vendor extension is set.
func (c ResourceCode) IsVendor() bool { return uint32(c)&vendorBit != 0 }

// Hook identifies a custom applier/tear hook bound to a ResourceConfig by name, per
// the tagged-variant redesign in spec §9 (DefaultWrite(path) vs CustomHook(id)).
// Resolution from id to function happens in the registry's hook dispatch table, not
// here, so ResourceConfig stays a plain, comparable value.
type Hook string

// ResourceConfig is the immutable-after-registration catalog entry for one tunable.
// The `validate` tags are enforced by the registry (github.com/go-playground/
// validator/v10) at registration time, ahead of the semantic checks in Validate.
type ResourceConfig struct {
	Code       ResourceCode `validate:"required"`
	Name       string       `validate:"required"`
	Path       string       `validate:"required_without=ApplierHook"`
	Policy     Policy
	Scope      Scope
	Permission Permission
	ModeMask   Mode
	LowBound   int64
	HighBound  int64 `validate:"gtefield=LowBound"`
	// Default is the original node content recorded at registration; it is restored
	// on last-untune and used to seed the crash-recovery file.
	Default int64

	// ApplierHook and TearHook name a custom hook bound via
	// registry.AttachHooks. The hook resolver cmd/cocotabled wires into CocoTable
	// does not read these fields: every resource is applied and torn down by
	// internal/apply.SysfsHook, whether or not a hook name is set.
	ApplierHook Hook `validate:"required_without=Path"`
	TearHook    Hook
}

// Validate checks the structural invariants spec §4.1 requires at registration
// time (malformed entries are rejected, not silently coerced).
func (rc *ResourceConfig) Validate() error {
	if rc.Code == 0 {
		return fmt.Errorf("resource %q: zero resource_code", rc.Name)
	}
	if rc.Name == "" {
		return fmt.Errorf("resource code %d: empty name", rc.Code)
	}
	if rc.LowBound > rc.HighBound {
		return fmt.Errorf("resource %q: low_threshold %d > high_threshold %d", rc.Name, rc.LowBound, rc.HighBound)
	}
	if rc.ApplierHook == "" && rc.Path == "" {
		return fmt.Errorf("resource %q: no path and no custom applier hook", rc.Name)
	}
	return nil
}

// Value carries a resource assignment's content: either a single integer or an
// ordered array of integers (spec §3, Resource.value). Multi-valued resources
// require a custom applier per spec §4.1.
type Value struct {
	Single  int64
	Array   []int64
	IsArray bool
}

// At returns the value at the given array index, or Single when the value is not
// an array and idx is 0. Used by the HIGHER_BETTER/LOWER_BETTER comparator, which
// per spec §9's flagged Open Question reads index 1 (not index 0) for multi-valued
// resources.
func (v Value) At(idx int) (int64, bool) {
	if !v.IsArray {
		if idx == 0 {
			return v.Single, true
		}
		return 0, false
	}
	if idx < 0 || idx >= len(v.Array) {
		return 0, false
	}
	return v.Array[idx], true
}

// DaemonSettings are the typed configuration tunables described in spec §6. The
// core never parses these from a property store itself; it receives them already
// typed by the config layer (internal/config.Load), which does not range-check
// them.
type DaemonSettings struct {
	MaxConcurrentRequests  int     `yaml:"max.concurrent.requests"`
	MaxResourcesPerRequest int     `yaml:"max.resources.per.request"`
	PulseDurationMS        int     `yaml:"pulse.duration"`
	GCDurationMS           int     `yaml:"garbage_collection.duration"`
	RateLimiterDelta       float64 `yaml:"rate_limiter.delta"`
	PenaltyFactor          float64 `yaml:"penalty.factor"`
	RewardFactor           float64 `yaml:"reward.factor"`
}

// DefaultSettings mirrors the defaults tabulated in spec §6.
func DefaultSettings() DaemonSettings {
	return DaemonSettings{
		MaxConcurrentRequests:  120,
		MaxResourcesPerRequest: 5,
		PulseDurationMS:        60000,
		GCDurationMS:           83000,
		RateLimiterDelta:       5,
		PenaltyFactor:          2.0,
		RewardFactor:           0.4,
	}
}
