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
	"net/http"
	"net/url"
	"testing"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"github.com/canonical/autopkgtest-admission/internal/admission"
)

func query(pairs ...string) url.Values {
	q := url.Values{}
	for i := 0; i < len(pairs); i += 2 {
		q.Add(pairs[i], pairs[i+1])
	}
	return q
}

func TestParseDistroRequest(t *testing.T) {
	t.Parallel()

	ftt.Run("distro request parsing", t, func(t *ftt.Test) {
		t.Run("minimal request", func(t *ftt.Test) {
			req, err := parseRequest(query(
				"release", "noble", "arch", "amd64", "package", "hello",
				"trigger", "hello/2.10-1",
			), "joe")
			assert.Loosely(t, err, should.BeNil)

			distro, ok := req.(*admission.DistroRequest)
			assert.Loosely(t, ok, should.BeTrue)
			assert.Loosely(t, distro.Release, should.Equal("noble"))
			assert.Loosely(t, distro.Arch, should.Equal("amd64"))
			assert.Loosely(t, distro.Package, should.Equal("hello"))
			assert.Loosely(t, distro.Triggers, should.Match([]string{"hello/2.10-1"}))
			assert.Loosely(t, distro.Requester, should.Equal("joe"))
			assert.Loosely(t, distro.Delete, should.BeFalse)
		})

		t.Run("repeated triggers and ppas", func(t *ftt.Test) {
			req, err := parseRequest(query(
				"release", "noble", "arch", "amd64", "package", "hello",
				"trigger", "hello/2.10-1", "trigger", "glibc/2.39-1",
				"ppa", "myteam/myppa", "ppa", "myteam/other",
			), "joe")
			assert.Loosely(t, err, should.BeNil)

			distro := req.(*admission.DistroRequest)
			assert.Loosely(t, distro.Triggers, should.HaveLength(2))
			assert.Loosely(t, distro.PPAs, should.Match([]string{"myteam/myppa", "myteam/other"}))
		})

		t.Run("flags and readable-by", func(t *ftt.Test) {
			req, err := parseRequest(query(
				"release", "noble", "arch", "amd64", "package", "hello",
				"trigger", "hello/2.10-1",
				"delete", "1", "all-proposed", "1", "readable-by", "ann",
			), "joe")
			assert.Loosely(t, err, should.BeNil)

			distro := req.(*admission.DistroRequest)
			assert.Loosely(t, distro.Delete, should.BeTrue)
			assert.Loosely(t, distro.AllProposed, should.BeTrue)
			assert.Loosely(t, distro.ReadableBy, should.Equal("ann"))
		})

		t.Run("bad flag values", func(t *ftt.Test) {
			base := []string{
				"release", "noble", "arch", "amd64", "package", "hello",
				"trigger", "hello/2.10-1",
			}
			_, err := parseRequest(query(append(base, "delete", "yes")...), "joe")
			assert.Loosely(t, err, should.ErrLike("Invalid delete value"))

			_, err = parseRequest(query(append(base, "all-proposed", "true")...), "joe")
			assert.Loosely(t, err, should.ErrLike("Invalid all-proposed value"))

			_, err = parseRequest(query(append(base, "readable-by", "")...), "joe")
			assert.Loosely(t, err, should.ErrLike("Invalid readable-by value"))
		})

		t.Run("unknown argument", func(t *ftt.Test) {
			_, err := parseRequest(query(
				"release", "noble", "arch", "amd64", "package", "hello",
				"trigger", "hello/2.10-1", "frobnicate", "1",
			), "joe")
			assert.Loosely(t, err, should.ErrLike("Invalid argument frobnicate"))
			assert.Loosely(t, admission.Status(err), should.Equal(http.StatusBadRequest))
		})

		t.Run("env is only for git requests", func(t *ftt.Test) {
			_, err := parseRequest(query(
				"release", "noble", "arch", "amd64", "package", "hello",
				"trigger", "hello/2.10-1", "env", "VAR=1",
			), "joe")
			assert.Loosely(t, err, should.ErrLike("Invalid argument env"))
		})

		t.Run("testname is only for git requests", func(t *ftt.Test) {
			_, err := parseRequest(query(
				"release", "noble", "arch", "amd64", "package", "hello",
				"trigger", "hello/2.10-1", "testname", "smoke",
			), "joe")
			assert.Loosely(t, err, should.ErrLike("Invalid argument testname"))
		})

		t.Run("anonymous submission", func(t *ftt.Test) {
			_, err := parseRequest(query(
				"release", "noble", "arch", "amd64", "package", "hello",
				"trigger", "hello/2.10-1",
			), "")
			assert.Loosely(t, admission.Status(err), should.Equal(http.StatusUnauthorized))
		})

		t.Run("missing required fields", func(t *ftt.Test) {
			_, err := parseRequest(query(
				"release", "noble", "package", "hello", "trigger", "hello/2.10-1",
			), "joe")
			assert.Loosely(t, err, should.ErrLike("You have passed invalid args"))
			assert.Loosely(t, admission.Status(err), should.Equal(http.StatusBadRequest))

			_, err = parseRequest(query(
				"release", "noble", "arch", "amd64", "package", "hello",
			), "joe")
			assert.Loosely(t, err, should.NotBeNil)
		})
	})
}

func TestParseGitRequest(t *testing.T) {
	t.Parallel()

	ftt.Run("git request parsing", t, func(t *ftt.Test) {
		t.Run("build-git selects the git kind", func(t *ftt.Test) {
			req, err := parseRequest(query(
				"release", "noble", "arch", "amd64", "package", "hello",
				"ppa", "myteam/myppa",
				"build-git", "https://git.example.com/hello",
				"testname", "smoke",
				"env", "UPSTREAM_TRIGGER=1.0",
			), "joe")
			assert.Loosely(t, err, should.BeNil)

			git, ok := req.(*admission.GitRequest)
			assert.Loosely(t, ok, should.BeTrue)
			assert.Loosely(t, git.BuildGit, should.Equal("https://git.example.com/hello"))
			assert.Loosely(t, git.Testname, should.Equal("smoke"))
			assert.Loosely(t, git.Env, should.Match([]string{"UPSTREAM_TRIGGER=1.0"}))
		})

		t.Run("semicolon-joined env entries are split", func(t *ftt.Test) {
			req, err := parseRequest(query(
				"release", "noble", "arch", "amd64", "package", "hello",
				"ppa", "myteam/myppa",
				"build-git", "https://git.example.com/hello",
				"env", "A=1;B=2",
			), "joe")
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, req.(*admission.GitRequest).Env, should.Match([]string{"A=1", "B=2"}))
		})

		t.Run("anonymous git submission is parseable", func(t *ftt.Test) {
			// Authorization of git requests happens against the PPA, not
			// the requester, so the requester header is optional here.
			req, err := parseRequest(query(
				"release", "noble", "arch", "amd64", "package", "hello",
				"ppa", "myteam/myppa",
				"build-git", "https://git.example.com/hello",
			), "")
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, req.Base().Requester, should.BeEmpty)
		})

		t.Run("distro-only arguments are rejected", func(t *ftt.Test) {
			for _, pair := range [][2]string{
				{"delete", "1"},
				{"all-proposed", "1"},
				{"readable-by", "ann"},
				{"trigger", "hello/2.10-1"},
			} {
				_, err := parseRequest(query(
					"release", "noble", "arch", "amd64", "package", "hello",
					"build-git", "https://git.example.com/hello",
					pair[0], pair[1],
				), "joe")
				assert.Loosely(t, err, should.ErrLike("Unsupported arguments: "+pair[0]))
			}
		})

		t.Run("missing required fields", func(t *ftt.Test) {
			_, err := parseRequest(query(
				"release", "noble", "package", "hello",
				"build-git", "https://git.example.com/hello",
			), "joe")
			assert.Loosely(t, err, should.ErrLike("You have passed invalid args"))
		})
	})
}

func TestRequesterLimiter(t *testing.T) {
	t.Parallel()

	ftt.Run("per-requester rate limit", t, func(t *ftt.Test) {
		limiter := newRequesterLimiter(1, 2)

		// The burst is per requester, not global.
		assert.Loosely(t, limiter.allow("joe"), should.BeTrue)
		assert.Loosely(t, limiter.allow("joe"), should.BeTrue)
		assert.Loosely(t, limiter.allow("joe"), should.BeFalse)
		assert.Loosely(t, limiter.allow("ann"), should.BeTrue)
	})
}
