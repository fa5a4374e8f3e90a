// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import "strings"

// sqlitePragmas are applied by the modernc driver on every new connection.
var sqlitePragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
}

// sqliteFilePragmas only make sense for databases backed by a file.
var sqliteFilePragmas = []string{
	"_pragma=journal_mode(WAL)",
}

// sqliteDSN appends the connection pragmas to dsn and reports whether the
// DSN names an in-memory database. Pragmas already present in dsn win.
func sqliteDSN(dsn string) (string, bool) {
	if dsn == "" {
		dsn = ":memory:"
	}
	memory := isMemoryDSN(dsn)
	pragmas := append([]string(nil), sqlitePragmas...)
	if !memory {
		pragmas = append(pragmas, sqliteFilePragmas...)
	}
	for _, p := range pragmas {
		name := p[:strings.Index(p, "(")]
		if strings.Contains(dsn, name+"(") {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}
	return dsn, memory
}

func isMemoryDSN(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") ||
		strings.HasPrefix(dsn, "file::memory:") || strings.Contains(dsn, "mode=memory")
}
