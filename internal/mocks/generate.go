// Package mocks provides gomock implementations of the provider API for
// pipeline tests.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=provider_mock.go github.com/lakewatch/thermal-service/internal/provider API
