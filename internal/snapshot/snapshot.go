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

// Package snapshot reads the externally produced dumps of currently
// queued and currently running test requests. Both files are
// regenerated periodically by other services; the engine only ever
// reads them, and a missing file is an empty snapshot rather than an
// error, so admission is never blocked on snapshot freshness.
package snapshot

import (
	"encoding/json"
	"os"
	"strings"

	"go.chromium.org/luci/common/errors"
)

// Params is the JSON parameter object attached to a queued or running
// request. It mirrors the request fields minus the package name.
type Params struct {
	Triggers    []string `json:"triggers,omitempty"`
	Requester   string   `json:"requester,omitempty"`
	SubmitTime  string   `json:"submit-time,omitempty"`
	AllProposed string   `json:"all-proposed,omitempty"`
	BuildGit    string   `json:"build-git,omitempty"`
	PPAs        []string `json:"ppas,omitempty"`
	Env         []string `json:"env,omitempty"`
	UUID        string   `json:"uuid,omitempty"`
}

// ArchQueue is the pending work for one (context, release, arch) queue.
type ArchQueue struct {
	Size int `json:"size"`
	// Requests holds serialized entries of the form
	// "<package>\n<json-object>".
	Requests []string `json:"requests"`
}

// Queued is the queued-requests snapshot, keyed by
// context → release → arch.
type Queued struct {
	Queues map[string]map[string]map[string]ArchQueue `json:"queues"`
}

// ReadQueued loads the queued snapshot from path. An absent file yields
// an empty snapshot.
func ReadQueued(path string) (*Queued, error) {
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return &Queued{}, nil
	case err != nil:
		return nil, errors.Annotate(err, "reading queued snapshot").Err()
	}
	q := &Queued{}
	if err := json.Unmarshal(data, q); err != nil {
		return nil, errors.Annotate(err, "decoding queued snapshot %s", path).Err()
	}
	return q, nil
}

// ParseEntry splits a serialized queue entry into its package name and
// parameter object.
func ParseEntry(raw string) (pkg string, params *Params, err error) {
	// The package name is the text before the JSON object.
	i := strings.IndexByte(raw, '{')
	if i < 0 {
		return "", nil, errors.Reason("queue entry has no parameter object").Err()
	}
	pkg = strings.TrimSpace(raw[:i])
	params = &Params{}
	if err := json.Unmarshal([]byte(raw[i:]), params); err != nil {
		return "", nil, errors.Annotate(err, "decoding queue entry for %q", pkg).Err()
	}
	return pkg, params, nil
}

// Running is the running-jobs snapshot, keyed by
// package → run-hash → release → arch. Each leaf is a three-element
// array of [params, duration-seconds, log-tail]; only the first element
// matters for admission.
type Running map[string]map[string]map[string]map[string]RunEntry

// RunEntry is one in-flight job.
type RunEntry []json.RawMessage

// Params decodes the job's parameter object. A malformed or missing
// element decodes as empty parameters.
func (e RunEntry) Params() *Params {
	p := &Params{}
	if len(e) > 0 {
		// Best effort: a bad entry matches nothing.
		_ = json.Unmarshal(e[0], p)
	}
	return p
}

// ReadRunning loads the running snapshot from path. An absent file
// yields an empty snapshot.
func ReadRunning(path string) (Running, error) {
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return Running{}, nil
	case err != nil:
		return nil, errors.Annotate(err, "reading running snapshot").Err()
	}
	r := Running{}
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Annotate(err, "decoding running snapshot %s", path).Err()
	}
	return r, nil
}
