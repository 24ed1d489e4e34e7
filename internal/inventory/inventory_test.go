package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withStubbedCommand(t *testing.T, stub func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	t.Helper()
	original := runCommand
	runCommand = stub
	t.Cleanup(func() { runCommand = original })
}

const sampleLsblk = `{
  "blockdevices": [
    {"name":"sda","size":"16000000000","type":"disk","mountpoint":null,"mountpoints":[null],
     "vendor":"Kingston","model":"DataTraveler","serial":"ABC123","tran":"usb","rm":true,"hotplug":true,
     "children":[{"name":"sda1","mountpoint":null,"mountpoints":[null]}]},
    {"name":"nvme0n1","size":"512000000000","type":"disk","mountpoint":null,"mountpoints":[null],
     "vendor":"","model":"SystemDisk","serial":"SYS001","tran":"nvme","rm":false,"hotplug":false,
     "children":[{"name":"nvme0n1p1","mountpoint":"/","mountpoints":["/"]}]}
  ]
}`

func TestListDrivesClassifiesRemovableAndSystem(t *testing.T) {
	withStubbedCommand(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		switch name {
		case "lsblk":
			return []byte(sampleLsblk), nil
		case "findmnt":
			return []byte("/dev/nvme0n1p1\n"), nil
		}
		return nil, nil
	})

	drives, err := ListDrives(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, drives, 2)

	var usbDrive, sysDrive Drive
	for _, d := range drives {
		if d.DevicePath == "/dev/sda" {
			usbDrive = d
		}
		if d.DevicePath == "/dev/nvme0n1" {
			sysDrive = d
		}
	}

	assert.True(t, usbDrive.Removable)
	assert.False(t, usbDrive.IsSystem)
	assert.False(t, usbDrive.Mounted)

	assert.False(t, sysDrive.Removable)
	assert.True(t, sysDrive.IsSystem)
	assert.True(t, sysDrive.Mounted)
}

func TestListDrivesOnlyRemovableFilters(t *testing.T) {
	withStubbedCommand(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name == "lsblk" {
			return []byte(sampleLsblk), nil
		}
		return []byte(""), nil
	})

	drives, err := ListDrives(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, drives, 1)
	assert.Equal(t, "/dev/sda", drives[0].DevicePath)
}

func TestShortPortAlias(t *testing.T) {
	alias := shortPortAlias("/dev/disk/by-path/pci-0000:00:14.0-usb-0:3:1.0-scsi-0:0:0:0")
	assert.Equal(t, "USB 0:3", alias)
}

func TestUsbSpeedFromPathHeuristics(t *testing.T) {
	assert.Equal(t, "3.0", usbSpeedFromPath("pci-0000:00:14.0-usb3-0:3:1.0"))
	assert.Equal(t, "2.0", usbSpeedFromPath("pci-0000:00:14.0-usb2-0:3:1.0"))
	assert.Equal(t, "unknown", usbSpeedFromPath("some-unrelated-string"))
}
