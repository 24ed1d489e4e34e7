package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
)

var (
	usbTopologyRegex = regexp.MustCompile(`usb[v23]*-(\d+:\d+(?:\.\d+)?)`)
	usbBusDevRegex   = regexp.MustCompile(`usb[v23]*-(\d+:\d+(?::\d+\.?\d*)*)`)
	partitionRegex   = regexp.MustCompile(`-part\d+$`)
	lunPartRegex     = regexp.MustCompile(`lun-\d+-part\d+$`)
	rootDeviceRegex  = regexp.MustCompile(`^(/dev/(?:sd[a-z]+|nvme\d+n\d+|mmcblk\d+))`)
)

const byPathDir = "/dev/disk/by-path"

// lsblkDevice mirrors the subset of lsblk's JSON schema Janus reads.
type lsblkDevice struct {
	Name        string        `json:"name"`
	Size        json.Number   `json:"size"`
	Type        string        `json:"type"`
	Mountpoint  string        `json:"mountpoint"`
	Mountpoints []string      `json:"mountpoints"`
	Vendor      string        `json:"vendor"`
	Model       string        `json:"model"`
	Serial      string        `json:"serial"`
	Tran        string        `json:"tran"`
	RM          bool          `json:"rm"`
	Hotplug     bool          `json:"hotplug"`
	FSType      string        `json:"fstype"`
	Children    []lsblkDevice `json:"children"`
}

type lsblkOutput struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

// runCommand runs an external tool (lsblk, findmnt, umount, udisksctl,
// eject) and returns its stdout. Kept as a var so tests can stub command
// execution.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Output()
}

func listLsblk(ctx context.Context, extraArgs ...string) (*lsblkOutput, error) {
	args := append([]string{"-J", "-b", "-o",
		"NAME,SIZE,TYPE,MOUNTPOINT,MOUNTPOINTS,VENDOR,MODEL,SERIAL,TRAN,RM,HOTPLUG"}, extraArgs...)
	out, err := runCommand(ctx, "lsblk", args...)
	if err != nil {
		return nil, fmt.Errorf("lsblk: %w", err)
	}
	var parsed lsblkOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("lsblk: parse output: %w", err)
	}
	return &parsed, nil
}

// rootDevice returns the block device backing "/", stripped of any
// partition suffix (/dev/sda1 -> /dev/sda).
func rootDevice(ctx context.Context) string {
	out, err := runCommand(ctx, "findmnt", "-n", "-o", "SOURCE", "/")
	if err != nil {
		return ""
	}
	source := strings.TrimSpace(string(out))
	if m := rootDeviceRegex.FindStringSubmatch(source); m != nil {
		return m[1]
	}
	return source
}

// byPathMap maps a resolved device path to its /dev/disk/by-path symlink.
func byPathMap() map[string]string {
	result := make(map[string]string)
	entries, err := os.ReadDir(byPathDir)
	if err != nil {
		return result
	}
	for _, entry := range entries {
		link := filepath.Join(byPathDir, entry.Name())
		target, err := filepath.EvalSymlinks(link)
		if err != nil {
			continue
		}
		result[target] = link
	}
	return result
}

// ListDrives enumerates block devices of type "disk" via lsblk, classifying
// each as removable/system/mounted. When onlyRemovable is true, non-
// removable disks are omitted.
func ListDrives(ctx context.Context, onlyRemovable bool) ([]Drive, error) {
	parsed, err := listLsblk(ctx)
	if err != nil {
		return nil, err
	}

	root := rootDevice(ctx)
	byPath := byPathMap()

	disks := lo.Filter(parsed.BlockDevices, func(d lsblkDevice, _ int) bool {
		return d.Type == "disk"
	})

	drives := make([]Drive, 0, len(disks))
	for _, d := range disks {
		removable := d.RM || d.Hotplug
		if onlyRemovable && !removable {
			continue
		}

		devicePath := "/dev/" + d.Name
		mounts := collectMountpoints(d)
		isSystem := devicePath == root || lo.Contains(mounts, "/") ||
			lo.Contains(mounts, "/boot") || lo.Contains(mounts, "/boot/efi")

		size, _ := d.Size.Int64()

		drives = append(drives, Drive{
			DevicePath: devicePath,
			ByPath:     byPath[devicePath],
			SizeBytes:  size,
			SizeHuman:  humanize.Bytes(uint64(size)),
			Model:      strings.TrimSpace(d.Model),
			Serial:     strings.TrimSpace(d.Serial),
			Removable:  removable,
			IsSystem:   isSystem,
			Mounted:    len(mounts) > 0,
			USBSpeed:   usbSpeedFromTransport(d.Tran, byPath[devicePath]),
		})
	}

	return drives, nil
}

func collectMountpoints(d lsblkDevice) []string {
	var mounts []string
	if d.Mountpoint != "" {
		mounts = append(mounts, d.Mountpoint)
	}
	for _, child := range d.Children {
		if child.Mountpoint != "" {
			mounts = append(mounts, child.Mountpoint)
		}
		for _, mp := range child.Mountpoints {
			if mp != "" && !lo.Contains(mounts, mp) {
				mounts = append(mounts, mp)
			}
		}
	}
	return mounts
}

// usbSpeedFromTransport returns "unknown" unless lsblk's TRAN column says
// "usb" and the device has a by-path link; the generation itself comes from
// the by-path topology heuristic.
func usbSpeedFromTransport(tran, portPath string) string {
	if tran != "usb" || portPath == "" {
		return "unknown"
	}
	return usbSpeedFromPath(portPath)
}

// usbSpeedFromPath best-effort classifies USB generation from a by-path
// string, reading the kernel-reported speed from sysfs when the topology
// can be parsed out of the path.
func usbSpeedFromPath(portPath string) string {
	lower := strings.ToLower(portPath)
	if strings.Contains(lower, "usb3") || strings.Contains(lower, "usbv3") {
		return "3.0"
	}
	if strings.Contains(lower, "usb2") || strings.Contains(lower, "usbv2") {
		return "2.0"
	}

	m := usbBusDevRegex.FindStringSubmatch(portPath)
	if m == nil {
		return "unknown"
	}
	parts := strings.Split(m[1], ":")
	if len(parts) < 2 {
		return "unknown"
	}
	sysfsPath := fmt.Sprintf("/sys/bus/usb/devices/%s-%s/speed", parts[0], parts[1])
	data, err := os.ReadFile(sysfsPath)
	if err != nil {
		return "unknown"
	}
	mbps, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return "unknown"
	}
	switch {
	case mbps >= 5000:
		return "3.2"
	case mbps >= 480:
		return "2.0"
	default:
		return "unknown"
	}
}

// shortPortAlias derives a human-readable label like "USB 0:3" from a
// by-path string.
func shortPortAlias(portPath string) string {
	name := filepath.Base(portPath)
	if m := usbTopologyRegex.FindStringSubmatch(name); m != nil {
		return "USB " + m[1]
	}
	if len(name) > 20 {
		return name[len(name)-20:]
	}
	return name
}

// ListPorts returns the flat, undeduplicated by-path listing (legacy shape
// kept for callers that want every symlink, partitions included).
func ListPorts(ctx context.Context) ([]Port, error) {
	entries, err := os.ReadDir(byPathDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", byPathDir, err)
	}

	ports := make([]Port, 0, len(entries))
	for _, entry := range entries {
		link := filepath.Join(byPathDir, entry.Name())
		ports = append(ports, Port{
			PortTopologyPath: link,
			Label:            shortPortAlias(link),
		})
	}
	return ports, nil
}

// ListPhysicalPorts returns one entry per by-path link, partition links
// excluded, enriched with whatever drive currently occupies it. Links are
// not filtered by transport, so non-USB by-path entries are listed too.
func ListPhysicalPorts(ctx context.Context) ([]PhysicalPort, error) {
	entries, err := os.ReadDir(byPathDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", byPathDir, err)
	}

	drives, err := ListDrives(ctx, false)
	if err != nil {
		return nil, err
	}
	driveByPath := make(map[string]Drive, len(drives))
	driveByDevice := make(map[string]Drive, len(drives))
	for _, d := range drives {
		if d.ByPath != "" {
			driveByPath[d.ByPath] = d
		}
		driveByDevice[d.DevicePath] = d
	}

	seen := make(map[string]bool)
	var result []PhysicalPort

	for _, entry := range entries {
		name := entry.Name()
		if partitionRegex.MatchString(name) || lunPartRegex.MatchString(name) {
			continue
		}
		link := filepath.Join(byPathDir, name)
		if seen[link] {
			continue
		}
		seen[link] = true

		var drive *Drive
		if d, ok := driveByPath[link]; ok {
			drive = &d
		} else if target, err := filepath.EvalSymlinks(link); err == nil {
			if d, ok := driveByDevice[target]; ok {
				drive = &d
			}
		}

		result = append(result, PhysicalPort{
			PortTopologyPath: link,
			Alias:            shortPortAlias(link),
			Occupied:         drive != nil,
			Drive:            drive,
		})
	}

	return result, nil
}

// UnmountDevice unmounts every mounted partition of a device.
func UnmountDevice(ctx context.Context, devicePath string) error {
	parsed, err := listLsblk(ctx, devicePath)
	if err != nil {
		return err
	}
	for _, bd := range parsed.BlockDevices {
		children := bd.Children
		if len(children) == 0 {
			children = []lsblkDevice{bd}
		}
		for _, child := range children {
			if child.Mountpoint == "" {
				continue
			}
			dev := "/dev/" + child.Name
			if _, err := runCommand(ctx, "umount", dev); err != nil {
				return fmt.Errorf("umount %s: %w", dev, err)
			}
		}
	}
	return nil
}

// EjectDevice unmounts a device and then attempts to power it off via
// udisksctl, falling back to eject(1) if udisksctl isn't installed.
func EjectDevice(ctx context.Context, devicePath string) error {
	if err := UnmountDevice(ctx, devicePath); err != nil {
		return fmt.Errorf("unmount failed: %w", err)
	}

	if _, err := runCommand(ctx, "udisksctl", "power-off", "-b", devicePath, "--no-user-interaction"); err == nil {
		return nil
	}
	if _, err := exec.LookPath("udisksctl"); err != nil {
		if _, ejectErr := runCommand(ctx, "eject", devicePath); ejectErr != nil {
			return fmt.Errorf("eject failed: %w", ejectErr)
		}
		return nil
	}
	return fmt.Errorf("power-off failed for %s", devicePath)
}
