// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the custody
// service.
//
// Configuration is loaded from a single file specified by either the
// CUSTODY_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Without an explicit production
// section, production switches logging to JSON.
//
// ${HOME} and ${VAR:-default} patterns are expanded in path fields
// (socket path, key directory, passphrase file, metrics listen
// address) after overrides are applied.
//
// [Config.Validate] reports every problem at once via errors.Join.
//
// This package depends on no other custody packages.
package config
