// Copyright 2026 The Autopkgtest Admission Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package admission

import (
	"regexp"
	"strings"
)

var (
	// nameRE matches source package names, Debian Policy 5.6.1.
	nameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9.+-]+$`)
	// versionRE matches package versions, Debian Policy 5.6.12.
	versionRE = regexp.MustCompile(`^[a-zA-Z0-9.+:~-]+$`)
	// envRE allows rather conservative KEY=VALUE settings, expand
	// if/when needed.
	envRE = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]+=[a-zA-Z0-9.:~/ -=]*$`)
	// gitURLRE matches an http(s) URL with an optional branch ref.
	gitURLRE = regexp.MustCompile(`^https?://[a-zA-Z0-9._/~+-]+(#[a-zA-Z0-9._/-]+)?$`)
)

// untestableTriggerPrefixes lists trigger sources that can never be
// tested. The raspi kernel doesn't support EFI and won't boot in
// OpenStack.
var untestableTriggerPrefixes = []string{"linux-meta-raspi"}

// specialTriggers are magic trigger values that don't name a published
// package and skip the archive existence checks.
var specialTriggers = map[string]bool{
	"qemu-efi-noacpi/0":       true,
	MigrationReferenceTrigger: true,
}

// Validator performs the syntactic and structural checks on incoming
// requests. It is cheap and purely local: no network calls, no side
// effects.
type Validator struct {
	// ReleaseArches maps each known release to its valid
	// architectures.
	ReleaseArches map[string][]string
}

// Validate checks req and returns nil if it is well-formed, or one of
// the admission errors describing the first problem found.
func (v *Validator) Validate(req Request) error {
	switch r := req.(type) {
	case *DistroRequest:
		return v.validateDistro(r)
	case *GitRequest:
		return v.validateGit(r)
	default:
		return BadRequestf("unknown request kind %T", req)
	}
}

func (v *Validator) checkReleaseArch(release, arch string) error {
	arches, ok := v.ReleaseArches[release]
	if !ok {
		return &NotFound{Kind: "release", Value: release}
	}
	for _, a := range arches {
		if a == arch {
			return nil
		}
	}
	return &NotFound{Kind: "arch", Value: arch}
}

func checkPPAFormat(ppas []string) error {
	for _, ppa := range ppas {
		team, name, ok := strings.Cut(ppa, "/")
		if !ok || !nameRE.MatchString(team) || !nameRE.MatchString(name) {
			return &NotFound{Kind: "ppa", Value: ppa}
		}
	}
	return nil
}

func (v *Validator) validateDistro(r *DistroRequest) error {
	if err := v.checkReleaseArch(r.Release, r.Arch); err != nil {
		return err
	}
	if err := checkPPAFormat(r.PPAs); err != nil {
		return err
	}

	if hasTrigger(r.Triggers, MigrationReferenceTrigger) {
		if len(r.Triggers) != 1 {
			return BadRequestf("Cannot use additional triggers with %s", MigrationReferenceTrigger)
		}
		if len(r.PPAs) > 0 {
			return BadRequestf("Cannot use PPAs with %s", MigrationReferenceTrigger)
		}
		if r.AllProposed {
			return BadRequestf("%s and all-proposed=1 are not compatible arguments.", MigrationReferenceTrigger)
		}
	}

	for _, trigger := range r.Triggers {
		if err := checkTrigger(trigger); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateGit(r *GitRequest) error {
	if err := v.checkReleaseArch(r.Release, r.Arch); err != nil {
		return err
	}
	if !nameRE.MatchString(r.Package) {
		return &NotFound{Kind: "package", Value: r.Package}
	}
	// Upstream results have no home in the Ubuntu archive, so a PPA
	// to associate them with is mandatory.
	if len(r.PPAs) == 0 {
		return BadRequestf("Must specify at least one PPA (to associate results with)")
	}
	if err := checkPPAFormat(r.PPAs); err != nil {
		return err
	}
	for _, e := range r.Env {
		if !envRE.MatchString(e) {
			return BadRequestf("Invalid environment variable format %q", e)
		}
	}
	if !gitURLRE.MatchString(r.BuildGit) {
		return BadRequestf("Malformed build-git")
	}
	if r.Testname != "" && !nameRE.MatchString(r.Testname) {
		return BadRequestf("Malformed testname")
	}
	return nil
}

// checkTrigger validates a single "source/version" trigger.
func checkTrigger(trigger string) error {
	src, ver, ok := splitTrigger(trigger)
	if !ok {
		return BadRequestf("Malformed trigger, must be srcpackage/version")
	}
	if !nameRE.MatchString(src) || !versionRE.MatchString(ver) {
		return BadRequestf("Malformed trigger: %s\nversion: %s", src, ver)
	}
	for _, prefix := range untestableTriggerPrefixes {
		if strings.HasPrefix(src, prefix) {
			return BadRequestf("The raspi kernel can't be tested with autopkgtest.")
		}
	}
	return nil
}

func hasTrigger(triggers []string, want string) bool {
	for _, t := range triggers {
		if t == want {
			return true
		}
	}
	return false
}
