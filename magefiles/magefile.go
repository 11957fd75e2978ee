// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

// Package main provides build targets for the passport project using Mage.
//
// Usage:
//
//	mage build      Compile the passport binary to bin/
//	mage test       Run all tests
//	mage testRace   Run all tests with the race detector
//	mage lint       Run golangci-lint
//	mage clean      Remove build artifacts
//	mage install    Install passport to GOPATH/bin
//	mage demo       Seed the demo product into a scratch data dir and serve it
//	mage stats      Print Go lines of code per package
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binLint    = "golangci-lint"
	binaryName = "passport"
	binaryDir  = "bin"
	cmdDir     = "./cmd/passport"
	demoDir    = ".demo"
)

// version returns the version stamped into the binary.
func version() string {
	out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || strings.TrimSpace(out) == "" {
		return "dev"
	}
	return strings.TrimSpace(out)
}

// Build compiles the passport binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	ldflags := "-X main.version=" + version()
	return sh.RunV(binGo, "build", "-v", "-ldflags", ldflags, "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test runs all tests.
func Test() error {
	return sh.RunV(binGo, "test", "./...")
}

// TestRace runs all tests with the race detector.
func TestRace() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Clean removes build artifacts and the demo data.
func Clean() error {
	for _, dir := range []string{binaryDir, demoDir} {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}

// Demo seeds the demo product into .demo/ and serves it on :8080.
func Demo() error {
	mg.Deps(Build)
	bin := filepath.Join(binaryDir, binaryName)
	dirs := []string{
		"--config-dir", filepath.Join(demoDir, "config"),
		"--data-dir", filepath.Join(demoDir, "data"),
	}
	if err := sh.RunV(bin, append(dirs, "seed")...); err != nil {
		return err
	}
	return sh.RunV(bin, append(dirs, "serve")...)
}
