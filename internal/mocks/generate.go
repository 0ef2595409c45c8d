// Package mocks provides mock implementations for testing the dispatch service.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// persistence interfaces. The mocks are generated using go:generate directives and
// provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockStore := mocks.NewMockStore(ctrl)
//	mockStore.EXPECT().GetJob(gomock.Any(), "job-1").Return(job, nil)
package mocks

// Generate mock for the Store interface from internal/core package.
// This creates MockStore covering the job, engine and snapshot method sets.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=store_mock.go github.com/target/transcode-dispatch/internal/core Store
