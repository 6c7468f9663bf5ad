/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import "runtime"

// Version is the current version of Slotkeeper.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/slotkeeper/internal/version.Version=X.Y.Z
var Version = "0.1.0"

// Commit is the source revision, set at build time like Version.
var Commit = "unknown"

// String renders version, commit and Go runtime for the version command.
func String() string {
	return "slotkeeper " + Version + " (" + Commit + ", " + runtime.Version() + ")"
}
