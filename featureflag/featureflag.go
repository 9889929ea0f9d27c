package featureflag

import (
	"slices"
	"strings"
)

// FeatureFlag is the set of enabled flags.
type FeatureFlag map[Flag]struct{}

// New returns the feature flags enabled by a list of names. Names are
// trimmed and upper cased, empty ones are ignored.
func New(flags []string) FeatureFlag {
	featureFlag := make(FeatureFlag)
	for _, f := range flags {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		featureFlag[Flag(f)] = struct{}{}
	}
	return featureFlag
}

func (f FeatureFlag) IsSet(flag Flag) bool {
	_, ok := f[flag]
	return ok
}

// IfSet runs do when flag is set.
func (f FeatureFlag) IfSet(flag Flag, do func()) {
	if f.IsSet(flag) {
		do()
	}
}

// IfNotSet runs do when flag is not set.
func (f FeatureFlag) IfNotSet(flag Flag, do func()) {
	if !f.IsSet(flag) {
		do()
	}
}

// Unknown returns the sorted set flags that are not in Known.
func (f FeatureFlag) Unknown() []string {
	var unknown []string
	for flag := range f {
		if !slices.Contains(Known, flag) {
			unknown = append(unknown, string(flag))
		}
	}
	slices.Sort(unknown)
	return unknown
}
