//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are run with `go run` or installed via `go install`; they are not runtime
// dependencies.
package tools

// Development tools:
//
// mockgen - regenerates internal/mocks from internal/ports
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock v0.6.0 (matches go.mod)
//
// Air - live reload for the web process (pair with DEV=true so templates load from disk)
//   Install: go install github.com/air-verse/air@v1.63.0
//   Run: AUTH_MODE=mock SERVICES=http air --build.cmd "go build -o ./tmp/marketplace ./cmd/marketplace" --build.bin ./tmp/marketplace
