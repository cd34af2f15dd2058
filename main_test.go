package main

import (
	"testing"
)

// TestMain_Compiles pins the entry point together. main() delegates to
// cmd.Execute, which exits the process, so the behavior itself is covered by
// the cmd package tests.
func TestMain_Compiles(t *testing.T) {
}
