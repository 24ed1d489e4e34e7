// Package stages: expand and resize share the same lsblk-based partition
// discovery, so it lives in one file.
package stages

import (
	"context"
	"encoding/json"
	"os/exec"
	"regexp"
	"strconv"
)

type lsblkPartition struct {
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	FSType   string           `json:"fstype"`
	Children []lsblkPartition `json:"children,omitempty"`
}

type lsblkPartitionOutput struct {
	BlockDevices []lsblkPartition `json:"blockdevices"`
}

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// lastPartition runs lsblk against devicePath and returns the last
// partition child lsblk reports, or ok=false if the device has none.
func lastPartition(ctx context.Context, devicePath string, columns string) (lsblkPartition, bool, error) {
	out, err := runCommandVar(ctx, "lsblk", "-J", "-o", columns, devicePath)
	if err != nil {
		return lsblkPartition{}, false, err
	}

	var parsed lsblkPartitionOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return lsblkPartition{}, false, err
	}
	if len(parsed.BlockDevices) == 0 || len(parsed.BlockDevices[0].Children) == 0 {
		return lsblkPartition{}, false, nil
	}

	children := parsed.BlockDevices[0].Children
	return children[len(children)-1], true, nil
}

// partitionNumber extracts the trailing digits of a partition's device name
// (e.g. "sdb3" -> 3, "mmcblk0p2" -> 2).
func partitionNumber(name string) (int, bool) {
	m := trailingDigits.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// runCommandVar is a package-level indirection over exec.CommandContext so
// tests can stub subprocess execution the same way internal/inventory does.
var runCommandVar = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
