// Package buildinfo reports the version of the running binary.
//
// Release builds set the variables through ldflags:
//
//	go build -ldflags "-X github.com/yndnr/docmesh-go/internal/infra/buildinfo.Version=v0.3.0"
//
// Unset values fall back to the module build information embedded by the
// Go toolchain.
package buildinfo
