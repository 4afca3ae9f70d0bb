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

// Package results reads the autopkgtest results database. The engine
// opens it read-only: it only needs to know which releases and
// architectures have tests at all, and whether a given package already
// has results.
package results

import (
	"context"
	"sort"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"go.chromium.org/luci/common/errors"
)

// Store is a read-only handle on the results database. Safe for
// concurrent use.
type Store struct {
	pool *sqlitex.Pool
}

// Open opens the results database at path read-only.
func Open(path string) (*Store, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadOnly,
		PoolSize: 4,
	})
	if err != nil {
		return nil, errors.Annotate(err, "opening results database %s", path).Err()
	}
	return &Store{pool: pool}, nil
}

// Close releases the database connections.
func (s *Store) Close() error {
	return s.pool.Close()
}

// HasResults reports whether package has any recorded test results on
// (release, arch). An empty release matches any release.
func (s *Store) HasResults(ctx context.Context, release, arch, pkg string) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, errors.Annotate(err, "taking results connection").Err()
	}
	defer s.pool.Put(conn)

	query := "SELECT count(arch) FROM test WHERE package = ? AND arch = ? AND release = ?"
	args := []any{pkg, arch, release}
	if release == "" {
		query = "SELECT count(arch) FROM test WHERE package = ? AND arch = ?"
		args = []any{pkg, arch}
	}

	count := 0
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return false, errors.Annotate(err, "querying results for %s", pkg).Err()
	}
	return count > 0, nil
}

// ReleaseArches determines the available releases and their
// architectures from the recorded tests, restricted to the supported
// release names.
func (s *Store) ReleaseArches(ctx context.Context, supported []string) (map[string][]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "taking results connection").Err()
	}
	defer s.pool.Put(conn)

	supportedSet := make(map[string]bool, len(supported))
	for _, r := range supported {
		supportedSet[r] = true
	}

	var releases []string
	err = sqlitex.Execute(conn, "SELECT DISTINCT release FROM test", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if r := stmt.ColumnText(0); supportedSet[r] {
				releases = append(releases, r)
			}
			return nil
		},
	})
	if err != nil {
		return nil, errors.Annotate(err, "querying releases").Err()
	}

	releaseArches := map[string][]string{}
	for _, release := range releases {
		err = sqlitex.Execute(conn, "SELECT DISTINCT arch FROM test WHERE release = ?", &sqlitex.ExecOptions{
			Args: []any{release},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				releaseArches[release] = append(releaseArches[release], stmt.ColumnText(0))
				return nil
			},
		})
		if err != nil {
			return nil, errors.Annotate(err, "querying arches for %s", release).Err()
		}
		sort.Strings(releaseArches[release])
	}
	return releaseArches, nil
}
