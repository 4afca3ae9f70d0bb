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
	"context"
	"sort"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/logging"

	"github.com/canonical/autopkgtest-admission/internal/snapshot"
)

// Dedup decides whether an equivalent request is already running or
// queued, by scanning the externally maintained snapshots. Two requests
// are the same test when they agree on (release, arch, package,
// sorted triggers, all-proposed); git requests additionally have to
// agree on (build-git, ppas, env-as-set).
type Dedup struct {
	// QueuedPath is the queued-requests snapshot file.
	QueuedPath string
	// RunningPath is the running-jobs snapshot file.
	RunningPath string
}

// Check returns RequestRunning or RequestInQueue if an equivalent
// request is already in flight, nil otherwise. A missing snapshot file
// counts as "no match": admission must not block on snapshot
// production.
func (d *Dedup) Check(ctx context.Context, req Request) error {
	base := req.Base()
	triggers := requestTriggers(req)

	running, err := snapshot.ReadRunning(d.RunningPath)
	if err != nil {
		return err
	}
	if d.matchRunning(running, req, triggers) {
		return &RequestRunning{
			Release:  base.Release,
			Package:  base.Package,
			Arch:     base.Arch,
			Triggers: triggers,
		}
	}

	queued, err := snapshot.ReadQueued(d.QueuedPath)
	if err != nil {
		return err
	}
	if d.matchQueued(ctx, queued, req, triggers) {
		return &RequestInQueue{
			Release:  base.Release,
			Package:  base.Package,
			Arch:     base.Arch,
			Triggers: triggers,
		}
	}
	return nil
}

func (d *Dedup) matchRunning(running snapshot.Running, req Request, triggers []string) bool {
	base := req.Base()
	for _, byRelease := range running[base.Package] {
		entry, ok := byRelease[base.Release][base.Arch]
		if !ok {
			continue
		}
		if sameTest(req, triggers, entry.Params()) {
			return true
		}
	}
	return false
}

func (d *Dedup) matchQueued(ctx context.Context, queued *snapshot.Queued, req Request, triggers []string) bool {
	base := req.Base()
	for queueContext, byRelease := range queued.Queues {
		// The huge queue is deliberately slow; a normal-priority
		// resubmission of one of its items must not be blocked.
		if queueContext == string(ContextHuge) {
			continue
		}
		archQueue := byRelease[base.Release][base.Arch]
		if archQueue.Size == 0 {
			continue
		}
		for _, raw := range archQueue.Requests {
			pkg, params, err := snapshot.ParseEntry(raw)
			if err != nil {
				logging.Warningf(ctx, "skipping unparsable queue entry: %s", err)
				continue
			}
			if pkg != base.Package {
				continue
			}
			if sameTest(req, triggers, params) {
				return true
			}
		}
	}
	return false
}

// sameTest applies the equivalence rule against one snapshot entry.
// Release, arch and package already match by construction of the scan.
func sameTest(req Request, triggers []string, params *snapshot.Params) bool {
	if !triggersEqual(triggers, params.Triggers) {
		return false
	}
	allProposed := false
	if r, ok := req.(*DistroRequest); ok {
		allProposed = r.AllProposed
	}
	if allProposed != (params.AllProposed != "") {
		return false
	}
	if r, ok := req.(*GitRequest); ok {
		if params.BuildGit != r.BuildGit {
			return false
		}
		if !slicesEqual(params.PPAs, r.PPAs) {
			return false
		}
		have := stringset.NewFromSlice(params.Env...)
		want := stringset.NewFromSlice(r.Env...)
		if have.Len() != want.Len() || !have.Contains(want) {
			return false
		}
	}
	return true
}

// requestTriggers returns the triggers relevant for dedup: first-class
// ones for distro requests, env-derived ones for git requests.
func requestTriggers(req Request) []string {
	if r, ok := req.(*GitRequest); ok {
		return r.EnvTriggers()
	}
	return req.Base().Triggers
}

func triggersEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
