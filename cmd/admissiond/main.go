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

// Command admissiond serves the test-request admission endpoint. It
// trusts a fronting proxy for authentication and reads the requester
// identity from the X-Forwarded-User header.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	"github.com/julienschmidt/httprouter"

	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/logging/gologger"

	"github.com/canonical/autopkgtest-admission/internal/admission"
	"github.com/canonical/autopkgtest-admission/internal/config"
	"github.com/canonical/autopkgtest-admission/internal/kvcache"
	"github.com/canonical/autopkgtest-admission/internal/launchpad"
	"github.com/canonical/autopkgtest-admission/internal/queue"
	"github.com/canonical/autopkgtest-admission/internal/results"
)

func main() {
	configPath := flag.String("config", "/etc/autopkgtest-admission.yaml", "path to the service configuration")
	flag.Parse()

	ctx := gologger.StdConfig.Use(context.Background())
	if err := run(ctx, *configPath); err != nil {
		logging.Errorf(ctx, "%s", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := results.Open(cfg.Web.DatabaseRO)
	if err != nil {
		return err
	}
	defer store.Close()

	releaseArches, err := store.ReleaseArches(ctx, cfg.Web.SupportedReleases)
	if err != nil {
		return err
	}
	logging.Debugf(ctx, "valid arches per release: %v", releaseArches)

	cache, err := kvcache.New(cfg.Web.UserCache)
	if err != nil {
		return err
	}

	engine := &admission.Engine{
		Validator: &admission.Validator{ReleaseArches: releaseArches},
		Dedup: &admission.Dedup{
			QueuedPath:  cfg.Web.QueueCache,
			RunningPath: cfg.Web.RunningCache,
		},
		Auth: &admission.Authorizer{
			Authority:    launchpad.New(cfg.Launchpad.APIBase),
			Results:      store,
			Cache:        cache,
			AllowedTeams: cfg.Web.AllowedRequestors,
		},
		Queue: &queue.AMQP{URI: cfg.AMQP.URI},
	}

	h := &handler{
		ctx:     ctx,
		engine:  engine,
		limiter: newRequesterLimiter(cfg.Web.RequestRate, cfg.Web.RequestBurst),
	}

	router := httprouter.New()
	router.GET("/", h.request)
	router.POST("/", h.request)
	router.GET("/request", h.request)
	router.POST("/request", h.request)

	logging.Infof(ctx, "listening on %s", cfg.Web.ListenAddr)
	return http.ListenAndServe(cfg.Web.ListenAddr, router)
}
