//go:build !unix

package database

import "os/exec"

func killProcessGroup(cmd *exec.Cmd) {}
