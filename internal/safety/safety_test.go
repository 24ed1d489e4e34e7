package safety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"janus/internal/inventory"
)

func gateWithDrives(drives []inventory.Drive) *Gate {
	return &Gate{listDrives: func(ctx context.Context, onlyRemovable bool) ([]inventory.Drive, error) {
		return drives, nil
	}}
}

func TestVerifyWritableAcceptsRemovableUnmounted(t *testing.T) {
	g := gateWithDrives([]inventory.Drive{
		{DevicePath: "/dev/sdz", Removable: true, IsSystem: false, Mounted: false},
	})

	ok, reason := g.VerifyWritable(context.Background(), "/dev/sdz", false)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestVerifyWritableRejectsSystemDevice(t *testing.T) {
	g := gateWithDrives([]inventory.Drive{
		{DevicePath: "/dev/sda", Removable: false, IsSystem: true},
	})

	ok, reason := g.VerifyWritable(context.Background(), "/dev/sda", true)
	assert.False(t, ok)
	assert.Contains(t, string(reason), "system device")
}

func TestVerifyWritableRejectsNonRemovableWithoutOverride(t *testing.T) {
	g := gateWithDrives([]inventory.Drive{
		{DevicePath: "/dev/sdb", Removable: false, IsSystem: false},
	})

	ok, _ := g.VerifyWritable(context.Background(), "/dev/sdb", false)
	assert.False(t, ok)
}

func TestVerifyWritableAllowsNonRemovableWithOverride(t *testing.T) {
	g := gateWithDrives([]inventory.Drive{
		{DevicePath: "/dev/sdb", Removable: false, IsSystem: false, Mounted: false},
	})

	ok, _ := g.VerifyWritable(context.Background(), "/dev/sdb", true)
	assert.True(t, ok)
}

func TestVerifyWritableRejectsMountedPartition(t *testing.T) {
	g := gateWithDrives([]inventory.Drive{
		{DevicePath: "/dev/sdz", Removable: true, Mounted: true},
	})

	ok, reason := g.VerifyWritable(context.Background(), "/dev/sdz", false)
	assert.False(t, ok)
	assert.Contains(t, string(reason), "mounted")
}

func TestVerifyWritableRejectsMissingDevice(t *testing.T) {
	g := gateWithDrives(nil)

	ok, reason := g.VerifyWritable(context.Background(), "/dev/sdz", false)
	assert.False(t, ok)
	assert.Contains(t, string(reason), "not found")
}
