// Package inventory enumerates block devices and physical USB ports on the
// host, classifying which are safe to write to. Snapshots are recomputed on
// every call; nothing here is cached beyond a single call's lsblk/findmnt
// invocation.
package inventory

// Drive is a point-in-time snapshot of one block device.
type Drive struct {
	DevicePath string `json:"device_path"`
	ByPath     string `json:"by_path,omitempty"`
	SizeBytes  int64  `json:"size_bytes"`
	SizeHuman  string `json:"size_human"`
	Model      string `json:"model,omitempty"`
	Serial     string `json:"serial,omitempty"`
	Removable  bool   `json:"removable"`
	IsSystem   bool   `json:"is_system"`
	Mounted    bool   `json:"mounted"`
	USBSpeed   string `json:"usb_speed"` // "2.0" | "3.0" | "3.2" | "unknown"
}

// Port is a logical slot supplied by the layout collaborator, identified by
// a stable USB topology path rather than a kernel device node.
type Port struct {
	CellID            string `json:"cell_id"`
	Label             string `json:"label"`
	PortTopologyPath  string `json:"port_topology_path"`
	USBHint           string `json:"usb_hint,omitempty"`
}

// PhysicalPort enriches a Port with whatever drive currently occupies it,
// for the operator-facing enumeration that shows occupied/vacant slots.
type PhysicalPort struct {
	PortTopologyPath string `json:"port_topology_path"`
	Alias            string `json:"alias"` // e.g. "USB 0:3"
	Occupied         bool   `json:"occupied"`
	Drive            *Drive `json:"drive,omitempty"`
}
