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

// Command admission-admin is the operator tool for the admission
// service: it clears the allowed-user cache, withdraws queued requests
// and dry-runs request validation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/maruel/subcommands"

	luciflag "go.chromium.org/luci/common/flag"
	"go.chromium.org/luci/common/logging/gologger"

	"github.com/canonical/autopkgtest-admission/internal/admission"
	"github.com/canonical/autopkgtest-admission/internal/config"
	"github.com/canonical/autopkgtest-admission/internal/kvcache"
	"github.com/canonical/autopkgtest-admission/internal/queue"
	"github.com/canonical/autopkgtest-admission/internal/results"
)

const defaultConfig = "/etc/autopkgtest-admission.yaml"

type baseRun struct {
	subcommands.CommandRunBase
	configPath string
}

func (b *baseRun) init() {
	b.Flags.StringVar(&b.configPath, "config", defaultConfig, "path to the service configuration")
}

func (b *baseRun) fail(err error) int {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	return 1
}

var cmdClearCache = &subcommands.Command{
	UsageLine: "clear-cache",
	ShortDesc: "empties the shared allowed-user cache",
	LongDesc: "Empties the shared allowed-user cache so that every " +
		"requester's team membership is checked afresh.",
	CommandRun: func() subcommands.CommandRun {
		c := &clearCacheRun{}
		c.init()
		return c
	},
}

type clearCacheRun struct {
	baseRun
}

func (c *clearCacheRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := gologger.StdConfig.Use(context.Background())
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return c.fail(err)
	}
	cache, err := kvcache.New(cfg.Web.UserCache)
	if err != nil {
		return c.fail(err)
	}
	if err := cache.Clear(ctx); err != nil {
		return c.fail(err)
	}
	fmt.Println("cache cleared")
	return 0
}

// requestFlags builds a distro request from command-line flags.
type requestFlags struct {
	release     string
	arch        string
	pkg         string
	triggers    []string
	ppas        []string
	requester   string
	allProposed bool
}

func (f *requestFlags) register(b *baseRun) {
	b.Flags.StringVar(&f.release, "release", "", "target release")
	b.Flags.StringVar(&f.arch, "arch", "", "target architecture")
	b.Flags.StringVar(&f.pkg, "package", "", "source package to test")
	b.Flags.Var(luciflag.StringSlice(&f.triggers), "trigger", "trigger as source/version (repeatable)")
	b.Flags.Var(luciflag.StringSlice(&f.ppas), "ppa", "PPA as team/name (repeatable)")
	b.Flags.StringVar(&f.requester, "requester", "", "requester identity")
	b.Flags.BoolVar(&f.allProposed, "all-proposed", false, "test against the whole proposed pocket")
}

func (f *requestFlags) request() *admission.DistroRequest {
	return &admission.DistroRequest{
		RequestBase: admission.RequestBase{
			Release:   f.release,
			Arch:      f.arch,
			Package:   f.pkg,
			Triggers:  f.triggers,
			Requester: f.requester,
			PPAs:      f.ppas,
		},
		AllProposed: f.allProposed,
	}
}

var cmdWithdraw = &subcommands.Command{
	UsageLine: "withdraw -release <release> -arch <arch> -package <pkg> -trigger <src/ver>",
	ShortDesc: "removes matching requests from the work queue",
	LongDesc: "Removes every queued request matching the given " +
		"parameters (ignoring submit-time and uuid) and reports how " +
		"many were removed.",
	CommandRun: func() subcommands.CommandRun {
		c := &withdrawRun{}
		c.init()
		c.flags.register(&c.baseRun)
		return c
	},
}

type withdrawRun struct {
	baseRun
	flags requestFlags
}

func (c *withdrawRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := gologger.StdConfig.Use(context.Background())
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return c.fail(err)
	}
	q := &queue.AMQP{URI: cfg.AMQP.URI}
	req := c.flags.request()
	req.Delete = true
	count, err := q.Withdraw(ctx, req)
	if err != nil {
		return c.fail(err)
	}
	fmt.Printf("deleted %d request(s)\n", count)
	return 0
}

var cmdValidate = &subcommands.Command{
	UsageLine: "validate -release <release> -arch <arch> -package <pkg> -trigger <src/ver>",
	ShortDesc: "dry-runs request validation",
	LongDesc: "Runs the syntactic validation checks against the given " +
		"request parameters without touching the queue or the " +
		"authority service.",
	CommandRun: func() subcommands.CommandRun {
		c := &validateRun{}
		c.init()
		c.flags.register(&c.baseRun)
		return c
	},
}

type validateRun struct {
	baseRun
	flags requestFlags
}

func (c *validateRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := gologger.StdConfig.Use(context.Background())
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return c.fail(err)
	}
	store, err := results.Open(cfg.Web.DatabaseRO)
	if err != nil {
		return c.fail(err)
	}
	defer store.Close()
	releaseArches, err := store.ReleaseArches(ctx, cfg.Web.SupportedReleases)
	if err != nil {
		return c.fail(err)
	}
	v := &admission.Validator{ReleaseArches: releaseArches}
	if err := v.Validate(c.flags.request()); err != nil {
		return c.fail(err)
	}
	fmt.Println("request is valid")
	return 0
}

var application = &subcommands.DefaultApplication{
	Name:  "admission-admin",
	Title: "Operator tool for the autopkgtest admission service.",
	Commands: []*subcommands.Command{
		cmdClearCache,
		cmdValidate,
		cmdWithdraw,
		subcommands.CmdHelp,
	},
}

func main() {
	os.Exit(subcommands.Run(application, nil))
}
