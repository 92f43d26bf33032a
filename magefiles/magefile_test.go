package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgs(t *testing.T) {
	got := buildArgs("bin/litfetch", "v0.1.0")
	assert.Equal(t, []string{
		"build",
		"-tags", "sqlite_fts5",
		"-ldflags", "-X main.version=v0.1.0",
		"-o", "bin/litfetch",
		"./cmd/litfetch",
	}, got)
}
