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

package launchpad

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/check"
	"go.chromium.org/luci/common/testing/truth/should"
)

// serve starts an API stub and returns a client pointed at it. The
// handler receives the object path (without the leading slash) and the
// parsed form.
func serve(t *ftt.Test, handler func(w http.ResponseWriter, obj string, form map[string]string)) *Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form := map[string]string{}
		for key := range r.Form {
			form[key] = r.Form.Get(key)
		}
		handler(w, r.URL.Path[1:], form)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func TestPPAExists(t *testing.T) {
	t.Parallel()

	ftt.Run("getPPAByName", t, func(t *ftt.Test) {
		ctx := context.Background()

		t.Run("existing PPA", func(t *ftt.Test) {
			client := serve(t, func(w http.ResponseWriter, obj string, form map[string]string) {
				check.Loosely(t, obj, should.Equal("~myteam"))
				check.Loosely(t, form["ws.op"], should.Equal("getPPAByName"))
				check.Loosely(t, form["name"], should.Equal(`"myppa"`))
				fmt.Fprint(w, `{"name": "myppa"}`)
			})
			assert.Loosely(t, client.PPAExists(ctx, "myteam", "myppa"), should.BeTrue)
		})

		t.Run("404 means missing", func(t *ftt.Test) {
			client := serve(t, func(w http.ResponseWriter, obj string, form map[string]string) {
				http.Error(w, "no such PPA", http.StatusNotFound)
			})
			assert.Loosely(t, client.PPAExists(ctx, "myteam", "myppa"), should.BeFalse)
		})

		t.Run("server error fails closed", func(t *ftt.Test) {
			client := serve(t, func(w http.ResponseWriter, obj string, form map[string]string) {
				http.Error(w, "oops", http.StatusInternalServerError)
			})
			assert.Loosely(t, client.PPAExists(ctx, "myteam", "myppa"), should.BeFalse)
		})

		t.Run("garbage body fails closed", func(t *ftt.Test) {
			client := serve(t, func(w http.ResponseWriter, obj string, form map[string]string) {
				fmt.Fprint(w, "<html>not json</html>")
			})
			assert.Loosely(t, client.PPAExists(ctx, "myteam", "myppa"), should.BeFalse)
		})

		t.Run("unreachable server fails closed", func(t *ftt.Test) {
			client := New("http://127.0.0.1:1/")
			assert.Loosely(t, client.PPAExists(ctx, "myteam", "myppa"), should.BeFalse)
		})
	})
}

func TestSourceComponent(t *testing.T) {
	t.Parallel()

	ftt.Run("getPublishedSources", t, func(t *ftt.Test) {
		ctx := context.Background()

		t.Run("published in primary", func(t *ftt.Test) {
			client := serve(t, func(w http.ResponseWriter, obj string, form map[string]string) {
				check.Loosely(t, obj, should.Equal("ubuntu/+archive/primary"))
				check.Loosely(t, form["ws.op"], should.Equal("getPublishedSources"))
				check.Loosely(t, form["source_name"], should.Equal(`"hello"`))
				check.Loosely(t, form["version"], should.Equal(`"2.10-1"`))
				check.Loosely(t, form["status"], should.Equal("Published"))
				fmt.Fprint(w, `{"total_size": 1, "entries": [{"component_name": "universe"}]}`)
			})
			component := client.SourceComponent(ctx, "noble", "hello", "2.10-1", "")
			assert.Loosely(t, component, should.Equal("universe"))
		})

		t.Run("PPA archive object", func(t *ftt.Test) {
			client := serve(t, func(w http.ResponseWriter, obj string, form map[string]string) {
				check.Loosely(t, obj, should.Equal("~myteam/+archive/ubuntu/myppa"))
				fmt.Fprint(w, `{"total_size": 1, "entries": [{"component_name": "main"}]}`)
			})
			component := client.SourceComponent(ctx, "noble", "hello", "2.10-1", "myteam/myppa")
			assert.Loosely(t, component, should.Equal("main"))
		})

		t.Run("version is optional", func(t *ftt.Test) {
			client := serve(t, func(w http.ResponseWriter, obj string, form map[string]string) {
				_, hasVersion := form["version"]
				check.Loosely(t, hasVersion, should.BeFalse)
				fmt.Fprint(w, `{"total_size": 1, "entries": [{"component_name": "main"}]}`)
			})
			assert.Loosely(t, client.SourceComponent(ctx, "noble", "hello", "", ""), should.Equal("main"))
		})

		t.Run("no matches", func(t *ftt.Test) {
			client := serve(t, func(w http.ResponseWriter, obj string, form map[string]string) {
				fmt.Fprint(w, `{"total_size": 0, "entries": []}`)
			})
			assert.Loosely(t, client.SourceComponent(ctx, "noble", "hello", "1.0", ""), should.BeEmpty)
		})

		t.Run("server error fails closed", func(t *ftt.Test) {
			client := serve(t, func(w http.ResponseWriter, obj string, form map[string]string) {
				http.Error(w, "oops", http.StatusBadGateway)
			})
			assert.Loosely(t, client.SourceComponent(ctx, "noble", "hello", "1.0", ""), should.BeEmpty)
		})
	})
}

func TestCanUpload(t *testing.T) {
	t.Parallel()

	ftt.Run("checkUpload", t, func(t *ftt.Test) {
		ctx := context.Background()

		t.Run("permitted", func(t *ftt.Test) {
			client := serve(t, func(w http.ResponseWriter, obj string, form map[string]string) {
				check.Loosely(t, obj, should.Equal("ubuntu/+archive/primary"))
				check.Loosely(t, form["ws.op"], should.Equal("checkUpload"))
				check.Loosely(t, form["component"], should.Equal("main"))
				check.Loosely(t, form["pocket"], should.Equal("Proposed"))
				w.WriteHeader(http.StatusOK)
			})
			assert.Loosely(t, client.CanUpload(ctx, "joe", "noble", "main", "hello"), should.BeTrue)
		})

		t.Run("not permitted", func(t *ftt.Test) {
			client := serve(t, func(w http.ResponseWriter, obj string, form map[string]string) {
				http.Error(w, "not allowed", http.StatusBadRequest)
			})
			assert.Loosely(t, client.CanUpload(ctx, "joe", "noble", "main", "hello"), should.BeFalse)
		})
	})
}

func TestSuperTeams(t *testing.T) {
	t.Parallel()

	ftt.Run("super_teams", t, func(t *ftt.Test) {
		ctx := context.Background()

		t.Run("names of all teams", func(t *ftt.Test) {
			client := serve(t, func(w http.ResponseWriter, obj string, form map[string]string) {
				check.Loosely(t, obj, should.Equal("~joe/super_teams"))
				check.Loosely(t, form["ws.size"], should.Equal("300"))
				fmt.Fprint(w, `{"entries": [{"name": "canonical"}, {"name": "ubuntu-dev"}, {"self_link": "nameless"}]}`)
			})
			teams := client.SuperTeams(ctx, "joe")
			assert.Loosely(t, teams, should.Match([]string{"canonical", "ubuntu-dev"}))
		})

		t.Run("failure yields no teams", func(t *ftt.Test) {
			client := serve(t, func(w http.ResponseWriter, obj string, form map[string]string) {
				http.Error(w, "oops", http.StatusInternalServerError)
			})
			assert.Loosely(t, client.SuperTeams(ctx, "joe"), should.BeEmpty)
		})
	})
}
