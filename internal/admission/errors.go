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
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// StatusError is implemented by every admission error. The status is an
// HTTP-ish classification used by the boundary layer to translate the
// error into a response code.
type StatusError interface {
	error
	Status() int
}

// Status returns the boundary status code for err, or 500 for anything
// outside the admission taxonomy.
func Status(err error) int {
	var se StatusError
	if errors.As(err, &se) {
		return se.Status()
	}
	return http.StatusInternalServerError
}

// BadRequest indicates malformed or logically inconsistent input, such
// as bad trigger syntax or an incompatible flag combination.
type BadRequest struct {
	Msg string
}

func (e *BadRequest) Error() string {
	if e.Msg == "" {
		return "bad request - unacceptable passed variables"
	}
	return e.Msg
}

func (e *BadRequest) Status() int { return http.StatusBadRequest }

// BadRequestf builds a BadRequest from a format string.
func BadRequestf(format string, args ...any) error {
	return &BadRequest{Msg: fmt.Sprintf(format, args...)}
}

// NotFound indicates that a referenced release, architecture, package
// or PPA does not exist.
type NotFound struct {
	Kind  string // "release", "arch", "package", "ppa"
	Value string
	Hint  string // optional trailing explanation
}

func (e *NotFound) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s %s %s", e.Kind, e.Value, e.Hint)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.Value)
}

func (e *NotFound) Status() int { return http.StatusNotFound }

// Unauthorized indicates a request with no usable requester identity.
type Unauthorized struct{}

func (e *Unauthorized) Error() string { return "authorization failure" }

func (e *Unauthorized) Status() int { return http.StatusUnauthorized }

// ForbiddenRequest indicates the requester lacks upload rights for both
// the tested package and every trigger, with no override applying.
type ForbiddenRequest struct {
	Package  string
	Triggers []string
}

func (e *ForbiddenRequest) Error() string {
	return fmt.Sprintf(
		"You are not allowed to upload %s or %s to Ubuntu, thus you are not allowed to use this service.",
		e.Package, strings.Join(e.Triggers, ","))
}

func (e *ForbiddenRequest) Status() int { return http.StatusForbidden }

// RequestInQueue indicates an equivalent request is already sitting in
// a work queue.
type RequestInQueue struct {
	Release  string
	Package  string
	Arch     string
	Triggers []string
}

func (e *RequestInQueue) Error() string {
	return fmt.Sprintf("Test already queued:\nrelease: %s\npkg: %s\narch: %s\ntriggers: %s",
		e.Release, e.Package, e.Arch, strings.Join(e.Triggers, ", "))
}

func (e *RequestInQueue) Status() int { return http.StatusForbidden }

// RequestRunning indicates an equivalent request is currently being
// executed.
type RequestRunning struct {
	Release  string
	Package  string
	Arch     string
	Triggers []string
}

func (e *RequestRunning) Error() string {
	return fmt.Sprintf("Test already running:\nrelease: %s\npkg: %s\narch: %s\ntriggers: %s",
		e.Release, e.Package, e.Arch, strings.Join(e.Triggers, ", "))
}

func (e *RequestRunning) Status() int { return http.StatusForbidden }

// TooManyRequests indicates the requester has exceeded the submission
// rate limit. It is raised by the boundary layer, not the engine.
type TooManyRequests struct {
	Requester string
}

func (e *TooManyRequests) Error() string {
	return fmt.Sprintf("You, %s, have requested too many tests. Please try again later.", e.Requester)
}

func (e *TooManyRequests) Status() int { return http.StatusTooManyRequests }

// InvalidArgs indicates mandatory base fields are missing before any
// deeper validation can run.
type InvalidArgs struct {
	Params []string // the keys that were passed
}

func (e *InvalidArgs) Error() string {
	keys := append([]string(nil), e.Params...)
	sort.Strings(keys)
	return fmt.Sprintf("You have passed invalid args: %s\nPlease see an example url below:\n%s",
		strings.Join(keys, ", "), exampleURL)
}

func (e *InvalidArgs) Status() int { return http.StatusBadRequest }

const exampleURL = "https://autopkgtest.ubuntu.com/request.cgi/?" +
	"release=release&arch=arch&package=pkg&" +
	"trigger=trigger1&trigger=trigger2"
