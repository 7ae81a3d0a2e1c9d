// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package version houses the version information of mnd.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// identAlphabet is the set of characters allowed in the pre-release and build
// metadata identifiers of a semantic version.
const identAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

var semverRE = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?` +
	`(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`)

// Version is the semantic version of mnd.  Release builds override it with
// '-ldflags "-X github.com/mnsuite/mnd/internal/version.Version=x.y.z"'.
var Version = "0.1.0-pre"

// SemVer is a parsed semantic version.
type SemVer struct {
	Major, Minor, Patch uint
	PreRelease          string
	BuildMetadata       string
}

// Parse parses a semantic version string.  Numeric pre-release identifiers
// must not have leading zeros.
func Parse(s string) (SemVer, error) {
	m := semverRE.FindStringSubmatch(s)
	if m == nil {
		return SemVer{}, fmt.Errorf("malformed version string %q", s)
	}
	var v SemVer
	for i, dst := range []*uint{&v.Major, &v.Minor, &v.Patch} {
		n, err := strconv.ParseUint(m[i+1], 10, 0)
		if err != nil {
			return SemVer{}, fmt.Errorf("malformed version string %q: %w",
				s, err)
		}
		*dst = uint(n)
	}
	if m[4] != "" {
		for _, id := range strings.Split(m[4], ".") {
			if len(id) > 1 && id[0] == '0' && isNumeric(id) {
				return SemVer{}, fmt.Errorf("malformed version string %q: "+
					"pre-release identifier %q has a leading zero", s, id)
			}
		}
	}
	v.PreRelease, v.BuildMetadata = m[4], m[5]
	return v, nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeString strips str of all characters not allowed in pre-release and
// build metadata identifiers.
func NormalizeString(str string) string {
	var b strings.Builder
	for _, r := range str {
		if strings.ContainsRune(identAlphabet, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var parsed SemVer

func init() {
	v, err := Parse(Version)
	if err != nil {
		panic(err)
	}
	if v.BuildMetadata == "" {
		v.BuildMetadata = NormalizeString(vcsCommitID())
	}
	parsed = v
}

// Get returns the parsed application version.
func Get() SemVer {
	return parsed
}

// String returns the application version with the commit id of the build as
// build metadata when the version does not carry any.
func String() string {
	if parsed.BuildMetadata == "" || strings.Contains(Version, "+") {
		return Version
	}
	return Version + "+" + parsed.BuildMetadata
}
