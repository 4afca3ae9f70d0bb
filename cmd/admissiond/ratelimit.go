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
	"sync"

	"golang.org/x/time/rate"
)

// requesterLimiter applies a token-bucket submission limit per
// requester identity.
type requesterLimiter struct {
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRequesterLimiter(perSecond float64, burst int) *requesterLimiter {
	return &requesterLimiter{
		rate:     rate.Limit(perSecond),
		burst:    burst,
		limiters: map[string]*rate.Limiter{},
	}
}

func (l *requesterLimiter) allow(requester string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[requester]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[requester] = lim
	}
	return lim.Allow()
}
