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

// Package admission implements the test-request admission pipeline:
// validate → deduplicate → authorize → publish. A request that clears
// all three checks is committed as a durable work-item on the broker;
// any failure surfaces as a typed error and leaves no side effect.
package admission

import (
	"context"

	"go.chromium.org/luci/common/logging"
)

// Publisher commits accepted requests to the work queue and withdraws
// previously queued ones.
type Publisher interface {
	// Publish serializes req, stamps it with a fresh UUID and the
	// submission time, and sends it as a durable message to the
	// request's queue. It returns the UUID.
	Publish(ctx context.Context, req Request) (string, error)
	// Withdraw removes every queued message equivalent to req
	// (ignoring submit-time and uuid) from the request's queue and
	// returns how many were removed.
	Withdraw(ctx context.Context, req Request) (int, error)
}

// Engine runs the full admission pipeline.
type Engine struct {
	Validator *Validator
	Dedup     *Dedup
	Auth      *Authorizer
	Queue     Publisher
}

// Result is the outcome of a successful submission.
type Result struct {
	// UUID identifies the committed work-item. Empty for withdrawals.
	UUID string
	// Withdrawn is how many queued requests a delete request removed.
	Withdrawn int
	// Deleted is true when the request was a withdrawal.
	Deleted bool
}

// Submit admits req. The checks run cheapest first: local validation,
// then the snapshot scans, then the authority calls. Only a fully
// admitted request touches the broker.
func (e *Engine) Submit(ctx context.Context, req Request) (*Result, error) {
	if err := e.Validator.Validate(req); err != nil {
		return nil, err
	}
	deleting := false
	if r, ok := req.(*DistroRequest); ok {
		deleting = r.Delete
	}
	// A withdrawal targets something that is in the queue on purpose,
	// so the duplicate check does not apply to it.
	if !deleting {
		if err := e.Dedup.Check(ctx, req); err != nil {
			return nil, err
		}
	}
	if err := e.Auth.Authorize(ctx, req); err != nil {
		return nil, err
	}

	base := req.Base()
	if deleting {
		count, err := e.Queue.Withdraw(ctx, req)
		if err != nil {
			return nil, err
		}
		logging.Infof(ctx, "withdrew %d request(s) for %s from %s", count, base.Package, req.QueueName())
		return &Result{Withdrawn: count, Deleted: true}, nil
	}

	id, err := e.Queue.Publish(ctx, req)
	if err != nil {
		return nil, err
	}
	logging.Infof(ctx, "queued %s on %s as %s for %s", base.Package, req.QueueName(), id, base.Requester)
	return &Result{UUID: id}, nil
}
