//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are installed globally via `go install` and are not tracked in go.mod
// since they are development tools, not runtime dependencies.
package tools

// Development tools (install via `go install`):
//
// mockgen - Mock generation for the core persistence interfaces
//   Install: go install go.uber.org/mock/mockgen@v0.6.0
//   Version: v0.6.0 (pinned alongside the go.uber.org/mock runtime dependency)
//   Docs: https://github.com/uber-go/mock
//   Invoked through `go generate ./internal/mocks`.
//
// goose - Database migration authoring
//   Install: go install github.com/pressly/goose/v3/cmd/goose@v3.26.0
//   Version: v3.26.0 (pinned to the library version in go.mod)
//   Docs: https://github.com/pressly/goose
//   Only needed to scaffold new files under internal/data/migrations;
//   the server applies pending migrations itself at startup.
