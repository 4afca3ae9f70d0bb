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

// Package launchpad is a minimal read-only client for the Launchpad
// REST API, covering exactly the queries the admission engine needs.
//
// Every call fails closed: a transport error, a non-2xx status or an
// unparsable body is reported as "not found" or "not permitted" for
// that one query. Nothing is retried; the caller is expected to
// resubmit the whole request. Do not "improve" this by distinguishing
// 404 from 500 or timeouts, matching the archive's behavior here is
// intentional.
package launchpad

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.chromium.org/luci/common/logging"
)

// DefaultAPIBase is the production Launchpad REST API root.
const DefaultAPIBase = "https://api.launchpad.net/1.0/"

// requestTimeout bounds every authority call.
const requestTimeout = 60 * time.Second

// Client issues Launchpad REST queries. Construct with New.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the API rooted at base, or at the production
// API when base is empty.
func New(base string) *Client {
	if base == "" {
		base = DefaultAPIBase
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: requestTimeout},
	}
}

// get requests <base><obj>?<query> and returns the status code and the
// decoded JSON object. body is nil unless the status was 2xx and the
// payload parsed.
func (c *Client) get(ctx context.Context, obj string, query url.Values) (code int, body map[string]any) {
	u := c.base + obj + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		logging.Errorf(ctx, "building request for %s failed: %s", u, err)
		return 0, nil
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logging.Errorf(ctx, "%s failed: %s", u, err)
		return 0, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.Errorf(ctx, "%s failed with code %d", u, resp.StatusCode)
		return resp.StatusCode, nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		logging.Errorf(ctx, "reading response of %s failed: %s", u, err)
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		logging.Errorf(ctx, "%s gave invalid response %q: %s", u, raw, err)
		return resp.StatusCode, nil
	}
	logging.Debugf(ctx, "%s succeeded", u)
	return resp.StatusCode, body
}

// jsonString encodes s the way Launchpad expects reference parameters:
// as a JSON string literal.
func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// PPAExists implements the authority query for
// https://launchpad.net/+apidoc/1.0.html#person-getPPAByName.
func (c *Client) PPAExists(ctx context.Context, team, name string) bool {
	code, body := c.get(ctx, "~"+team, url.Values{
		"ws.op":        {"getPPAByName"},
		"distribution": {jsonString(c.base + "ubuntu")},
		"name":         {jsonString(name)},
	})
	logging.Debugf(ctx, "PPAExists(%s/%s): code %d", team, name, code)
	if body == nil {
		return false
	}
	got, _ := body["name"].(string)
	return got == name
}

// SourceComponent implements the authority query for
// https://launchpad.net/+apidoc/1.0.html#archive-getPublishedSources.
// It returns the component the package is published in, or "".
func (c *Client) SourceComponent(ctx context.Context, release, pkg, version, ppa string) string {
	obj := "ubuntu/+archive/primary"
	if ppa != "" {
		team, name, _ := strings.Cut(ppa, "/")
		obj = "~" + team + "/+archive/ubuntu/" + name
	}
	query := url.Values{
		"ws.op":         {"getPublishedSources"},
		"source_name":   {jsonString(pkg)},
		"distro_series": {jsonString(c.base + "ubuntu/" + release)},
		"status":        {"Published"},
		"exact_match":   {"true"},
	}
	if version != "" {
		query.Set("version", jsonString(version))
	}
	_, body := c.get(ctx, obj, query)
	if body == nil {
		return ""
	}
	if total, _ := body["total_size"].(float64); total <= 0 {
		return ""
	}
	entries, _ := body["entries"].([]any)
	if len(entries) == 0 {
		return ""
	}
	first, _ := entries[0].(map[string]any)
	component, _ := first["component_name"].(string)
	return component
}

// CanUpload implements the authority query for
// https://launchpad.net/+apidoc/1.0.html#archive-checkUpload. Success
// is status-only.
func (c *Client) CanUpload(ctx context.Context, person, release, component, pkg string) bool {
	code, _ := c.get(ctx, "ubuntu/+archive/primary", url.Values{
		"ws.op":             {"checkUpload"},
		"distroseries":      {jsonString(c.base + "ubuntu/" + release)},
		"person":            {jsonString(c.base + "~" + person)},
		"component":         {component},
		"pocket":            {"Proposed"},
		"sourcepackagename": {jsonString(pkg)},
	})
	logging.Debugf(ctx, "CanUpload(%s, %s, %s, %s): %d", person, release, component, pkg, code)
	return code >= 200 && code < 300
}

// SuperTeams returns the names of all teams person transitively belongs
// to. The page size is capped at 300; someone in more teams than that
// may be missed.
func (c *Client) SuperTeams(ctx context.Context, person string) []string {
	_, body := c.get(ctx, "~"+person+"/super_teams", url.Values{
		"ws.size": {"300"},
	})
	if body == nil {
		return nil
	}
	entries, _ := body["entries"].([]any)
	teams := make([]string, 0, len(entries))
	for _, e := range entries {
		entry, _ := e.(map[string]any)
		if name, _ := entry["name"].(string); name != "" {
			teams = append(teams, name)
		}
	}
	return teams
}
