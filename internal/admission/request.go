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
	"fmt"
	"strings"
)

// QueueContext is the queue partition dimension distinguishing plain
// distro tests, PPA-backed tests and upstream git tests.
type QueueContext string

const (
	// ContextNone is the default distro-test partition.
	ContextNone QueueContext = ""
	// ContextPPA is the partition for PPA-backed distro tests.
	ContextPPA QueueContext = "ppa"
	// ContextUpstream is the partition for upstream git tests.
	ContextUpstream QueueContext = "upstream"
	// ContextHuge is a deliberately slower partition for mass
	// resubmissions. It is never assigned by the engine, but the
	// dedup checker knows to skip it.
	ContextHuge QueueContext = "huge"
)

// MigrationReferenceTrigger requests a test run against the release
// pocket only, to establish a baseline. It is mutually exclusive with
// every other trigger, with PPAs and with all-proposed.
const MigrationReferenceTrigger = "migration-reference/0"

// Request is the unit submitted for admission: either a *DistroRequest
// or a *GitRequest. A Request is constructed once by the boundary layer
// and treated as immutable by the engine.
type Request interface {
	// Base returns the fields common to both request kinds.
	Base() *RequestBase
	// Context returns the queue partition the request belongs to.
	Context() QueueContext
	// QueueName returns the broker queue the request is routed to,
	// of the form "debci[-<context>]-<release>-<arch>".
	QueueName() string
	// Params returns the JSON message parameters, i.e. every request
	// field except the package name. The publisher adds "uuid" and
	// "submit-time" on top of these.
	Params() map[string]any
}

// RequestBase carries the fields shared by distro and git requests.
type RequestBase struct {
	Release   string
	Arch      string
	Package   string
	Triggers  []string // "source/version" pairs, may be empty for git
	Requester string
	PPAs      []string // "team/name" strings
}

// Base implements Request.
func (b *RequestBase) Base() *RequestBase { return b }

func (b *RequestBase) queueName(context QueueContext) string {
	if context != ContextNone {
		return fmt.Sprintf("debci-%s-%s-%s", context, b.Release, b.Arch)
	}
	return fmt.Sprintf("debci-%s-%s", b.Release, b.Arch)
}

// DistroRequest asks for a test of a source package as published in the
// Ubuntu archive, or in PPAs layered on top of it.
type DistroRequest struct {
	RequestBase

	// AllProposed runs the test against the entire proposed pocket
	// instead of just the trigger packages.
	AllProposed bool
	// Delete withdraws a previously submitted, still-queued request
	// instead of submitting a new one.
	Delete bool
	// ReadableBy restricts result visibility to the named person.
	ReadableBy string
}

// Context implements Request. Distro requests with PPAs run in the
// "ppa" partition, everything else in the default one.
func (r *DistroRequest) Context() QueueContext {
	if len(r.PPAs) > 0 {
		return ContextPPA
	}
	return ContextNone
}

// QueueName implements Request.
func (r *DistroRequest) QueueName() string { return r.queueName(r.Context()) }

// Params implements Request. Delete is a submission-control flag and is
// not part of the message body.
func (r *DistroRequest) Params() map[string]any {
	params := map[string]any{
		"triggers":  r.Triggers,
		"requester": r.Requester,
	}
	if len(r.PPAs) > 0 {
		params["ppas"] = r.PPAs
	}
	if r.AllProposed {
		params["all-proposed"] = "1"
	}
	if r.ReadableBy != "" {
		params["readable-by"] = r.ReadableBy
	}
	return params
}

// GitRequest asks for a test of an upstream git branch, built and run
// against at least one PPA.
type GitRequest struct {
	RequestBase

	// BuildGit is the URL of the branch to build and test, optionally
	// suffixed with "#<ref>".
	BuildGit string
	// Testname selects a single test to run.
	Testname string
	// Env is a list of KEY=VALUE settings passed to the test.
	Env []string
}

// Context implements Request.
func (r *GitRequest) Context() QueueContext { return ContextUpstream }

// QueueName implements Request.
func (r *GitRequest) QueueName() string { return r.queueName(ContextUpstream) }

// Params implements Request.
func (r *GitRequest) Params() map[string]any {
	params := map[string]any{
		"build-git": r.BuildGit,
	}
	if r.Requester != "" {
		params["requester"] = r.Requester
	}
	if len(r.PPAs) > 0 {
		params["ppas"] = r.PPAs
	}
	if len(r.Env) > 0 {
		params["env"] = r.Env
	}
	if r.Testname != "" {
		params["testname"] = r.Testname
	}
	return params
}

// EnvTriggers extracts trigger values from the request's environment
// settings. Upstream requests carry their triggers inside env entries
// rather than as first-class triggers.
func (r *GitRequest) EnvTriggers() []string {
	var triggers []string
	for _, e := range r.Env {
		if !strings.Contains(e, "trigger") {
			continue
		}
		_, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		for _, t := range strings.Split(value, ",") {
			triggers = append(triggers, t)
		}
	}
	return triggers
}

// splitTrigger splits a "source/version" trigger into its parts. ok is
// false unless the trigger contains exactly one slash.
func splitTrigger(trigger string) (src, ver string, ok bool) {
	if strings.Count(trigger, "/") != 1 {
		return "", "", false
	}
	src, ver, _ = strings.Cut(trigger, "/")
	return src, ver, true
}
