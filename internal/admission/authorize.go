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
	"strconv"
	"strings"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/logging"

	"github.com/canonical/autopkgtest-admission/internal/kvcache"
)

// allowedUserCacheTime is how long a positive team-membership check is
// memoized before the authority service is asked again.
const allowedUserCacheTime = 3 * time.Hour

// allowedUsersPerPackage lists individual users (not teams) who may
// request tests for specific packages regardless of upload rights.
var allowedUsersPerPackage = map[string][]string{
	"snapcraft": {"snappy-m-o"},
}

// Authority answers archive existence, publication and permission
// queries. All methods fail closed: a transport error or an unparsable
// payload is reported as "no"/"not found" for that specific check, and
// no method is ever retried.
type Authority interface {
	// PPAExists reports whether team has a PPA called name.
	PPAExists(ctx context.Context, team, name string) bool
	// SourceComponent returns the archive component package is
	// published in for release, or "" if it is not published. An
	// empty version matches any published version. A non-empty ppa
	// ("team/name") queries that PPA instead of the primary archive.
	SourceComponent(ctx context.Context, release, pkg, version, ppa string) string
	// CanUpload reports whether person may upload pkg into the
	// given release and component.
	CanUpload(ctx context.Context, person, release, component, pkg string) bool
	// SuperTeams returns the names of all teams person transitively
	// belongs to.
	SuperTeams(ctx context.Context, person string) []string
}

// ResultsStore answers whether a package already has recorded test
// results.
type ResultsStore interface {
	HasResults(ctx context.Context, release, arch, pkg string) (bool, error)
}

// Authorizer decides whether the requester may submit a request. It
// consults the authority service, the results store and the shared
// allowed-user cache.
type Authorizer struct {
	Authority Authority
	Results   ResultsStore
	Cache     *kvcache.Cache

	// AllowedTeams are team names whose members may queue arbitrary
	// tests.
	AllowedTeams []string
}

// Authorize returns nil if the requester may submit req.
//
// Distro requests demand that every trigger and the tested package are
// published in the target release (or the last-named PPA), and that
// the requester can upload at least one of them, unless a per-package
// allow-list or allowed-team membership overrides that. Git requests
// only need their PPAs to exist, since execution is already gated on
// possessing a PPA.
func (a *Authorizer) Authorize(ctx context.Context, req Request) error {
	switch r := req.(type) {
	case *DistroRequest:
		return a.authorizeDistro(ctx, r)
	case *GitRequest:
		return a.checkPPAsExist(ctx, r.PPAs)
	default:
		return BadRequestf("unknown request kind %T", req)
	}
}

func (a *Authorizer) authorizeDistro(ctx context.Context, r *DistroRequest) error {
	if err := a.checkPPAsExist(ctx, r.PPAs); err != nil {
		return err
	}

	lastPPA := ""
	if len(r.PPAs) > 0 {
		lastPPA = r.PPAs[len(r.PPAs)-1]
	}

	inTeam := a.inAllowedTeam(ctx, r.Requester)
	if !inTeam && len(r.PPAs) == 0 {
		ok, err := a.Results.HasResults(ctx, r.Release, r.Arch, r.Package)
		if err != nil {
			logging.Errorf(ctx, "results lookup for %s/%s/%s failed: %s", r.Release, r.Arch, r.Package, err)
			ok = false
		}
		if !ok {
			return &NotFound{Kind: "package", Value: r.Package, Hint: "does not have any test results"}
		}
	}

	canUploadAnyTrigger := false
	for _, trigger := range r.Triggers {
		if specialTriggers[trigger] {
			continue
		}
		src, ver, _ := splitTrigger(trigger)

		var component string
		if lastPPA != "" {
			if a.Authority.SourceComponent(ctx, r.Release, src, ver, lastPPA) == "" {
				return BadRequestf("%s is not published in PPA %s %s", trigger, lastPPA, r.Release)
			}
			// PPAs don't have components, so determine it from the
			// primary archive.
			component = a.Authority.SourceComponent(ctx, r.Release, src, "", "")
			if component == "" {
				component = "main"
			}
		} else {
			component = a.Authority.SourceComponent(ctx, r.Release, src, ver, "")
			if component == "" {
				return BadRequestf("%s is not published in %s", trigger, r.Release)
			}
		}

		canUploadAnyTrigger = canUploadAnyTrigger ||
			a.Authority.CanUpload(ctx, r.Requester, r.Release, component, src)
	}

	var pkgComponent string
	if lastPPA != "" {
		pkgComponent = a.Authority.SourceComponent(ctx, r.Release, r.Package, "", "")
		if pkgComponent == "" {
			pkgComponent = "main"
		}
	} else {
		pkgComponent = a.Authority.SourceComponent(ctx, r.Release, r.Package, "", "")
		if pkgComponent == "" {
			return BadRequestf("%s is not published in %s", r.Package, r.Release)
		}
	}

	if a.Authority.CanUpload(ctx, r.Requester, r.Release, pkgComponent, r.Package) ||
		canUploadAnyTrigger ||
		userAllowedForPackage(r.Requester, r.Package) ||
		inTeam {
		return nil
	}
	return &ForbiddenRequest{Package: r.Package, Triggers: r.Triggers}
}

func (a *Authorizer) checkPPAsExist(ctx context.Context, ppas []string) error {
	for _, ppa := range ppas {
		team, name, _ := strings.Cut(ppa, "/")
		if !a.Authority.PPAExists(ctx, team, name) {
			return &NotFound{Kind: "ppa", Value: ppa}
		}
	}
	return nil
}

// inAllowedTeam reports whether person belongs to one of the allowed
// teams. Positive answers are memoized in the shared cache for
// allowedUserCacheTime; expired entries are evicted before the
// authority service is asked again.
func (a *Authorizer) inAllowedTeam(ctx context.Context, person string) bool {
	if value, ok, err := a.Cache.Get(ctx, person); err != nil {
		logging.Errorf(ctx, "allowed-user cache read for %q failed: %s", person, err)
	} else if ok {
		if ts, err := strconv.ParseFloat(value, 64); err == nil {
			age := clock.Now(ctx).Sub(time.Unix(int64(ts), 0))
			if age <= allowedUserCacheTime {
				return true
			}
		}
		if err := a.Cache.Delete(ctx, person); err != nil {
			logging.Errorf(ctx, "allowed-user cache eviction for %q failed: %s", person, err)
		}
	}

	for _, team := range a.Authority.SuperTeams(ctx, person) {
		for _, allowed := range a.AllowedTeams {
			if team == allowed {
				now := strconv.FormatInt(clock.Now(ctx).Unix(), 10)
				if err := a.Cache.Set(ctx, person, now); err != nil {
					logging.Errorf(ctx, "allowed-user cache write for %q failed: %s", person, err)
				}
				return true
			}
		}
	}
	return false
}

func userAllowedForPackage(person, pkg string) bool {
	for _, u := range allowedUsersPerPackage[pkg] {
		if u == person {
			return true
		}
	}
	return false
}
