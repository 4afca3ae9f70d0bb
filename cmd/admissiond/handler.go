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

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"go.chromium.org/luci/common/logging"

	"github.com/canonical/autopkgtest-admission/internal/admission"
)

type handler struct {
	ctx     context.Context
	engine  *admission.Engine
	limiter *requesterLimiter
}

// request handles a test submission. Query parameters are mapped onto a
// request record, the engine runs the admission pipeline, and the typed
// admission errors translate into response codes.
func (h *handler) request(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := h.ctx
	requester := r.Header.Get("X-Forwarded-User")

	req, err := parseRequest(r.URL.Query(), requester)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	limitKey := requester
	if limitKey == "" {
		limitKey = r.RemoteAddr
	}
	if !h.limiter.allow(limitKey) {
		h.fail(ctx, w, &admission.TooManyRequests{Requester: limitKey})
		return
	}

	result, err := h.engine.Submit(ctx, req)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result.Deleted {
		json.NewEncoder(w).Encode(map[string]any{"deleted": result.Withdrawn})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"uuid":    result.UUID,
		"package": req.Base().Package,
		"queue":   req.QueueName(),
	})
}

func (h *handler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	status := admission.Status(err)
	logging.Errorf(ctx, "request failed with %d: %s", status, err)
	http.Error(w, err.Error(), status)
}

// multiArgs maps repeatable GET parameters to their request field.
var multiArgs = map[string]string{
	"trigger": "triggers",
	"ppa":     "ppas",
	"env":     "env",
}

var singleArgs = map[string]bool{
	"release":      true,
	"arch":         true,
	"package":      true,
	"delete":       true,
	"all-proposed": true,
	"readable-by":  true,
	"build-git":    true,
	"testname":     true,
}

// parseRequest builds a typed request from the raw query. The field
// set per request kind is closed: anything unrecognized is rejected
// here rather than silently dropped.
func parseRequest(query map[string][]string, requester string) (admission.Request, error) {
	for key := range query {
		if !singleArgs[key] && multiArgs[key] == "" {
			return nil, admission.BadRequestf("Invalid argument %s", key)
		}
	}

	first := func(key string) string {
		if v := query[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	base := admission.RequestBase{
		Release:   first("release"),
		Arch:      first("arch"),
		Package:   first("package"),
		Triggers:  query["trigger"],
		Requester: requester,
		PPAs:      query["ppa"],
	}

	// Split "VAR1=value;VAR2=value" env arguments, as some frameworks
	// don't allow repeating "env=".
	var env []string
	for _, e := range query["env"] {
		env = append(env, splitSemicolons(e)...)
	}

	if first("build-git") != "" {
		for _, key := range []string{"delete", "all-proposed", "readable-by", "trigger"} {
			if len(query[key]) > 0 {
				return nil, admission.BadRequestf("Unsupported arguments: %s", key)
			}
		}
		if base.Release == "" || base.Arch == "" || base.Package == "" {
			return nil, &admission.InvalidArgs{Params: keys(query)}
		}
		return &admission.GitRequest{
			RequestBase: base,
			BuildGit:    first("build-git"),
			Testname:    first("testname"),
			Env:         env,
		}, nil
	}

	if len(env) > 0 {
		return nil, admission.BadRequestf("Invalid argument env")
	}
	if first("testname") != "" {
		return nil, admission.BadRequestf("Invalid argument testname")
	}
	if requester == "" {
		return nil, &admission.Unauthorized{}
	}
	if base.Release == "" || base.Arch == "" || base.Package == "" || len(base.Triggers) == 0 {
		return nil, &admission.InvalidArgs{Params: keys(query)}
	}

	req := &admission.DistroRequest{RequestBase: base}
	if v := first("delete"); v != "" {
		if v != "1" {
			return nil, admission.BadRequestf("Invalid delete value")
		}
		req.Delete = true
	}
	if v := first("all-proposed"); v != "" {
		if v != "1" {
			return nil, admission.BadRequestf("Invalid all-proposed value")
		}
		req.AllProposed = true
	}
	if len(query["readable-by"]) > 0 {
		if first("readable-by") == "" {
			return nil, admission.BadRequestf("Invalid readable-by value")
		}
		req.ReadableBy = first("readable-by")
	}
	return req, nil
}

func splitSemicolons(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func keys(query map[string][]string) []string {
	out := make([]string, 0, len(query))
	for k := range query {
		out = append(out, k)
	}
	return out
}
