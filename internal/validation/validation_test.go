package validation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDevicePath(t *testing.T) {
	tests := []struct {
		name       string
		devicePath string
		wantErr    bool
	}{
		{name: "valid device", devicePath: "/dev/sdz", wantErr: false},
		{name: "valid nested device", devicePath: "/dev/disk/by-path/pci-0000:00:14.0-usb-0:3:1.0-scsi-0:0:0:0", wantErr: false},
		{name: "empty path", devicePath: "", wantErr: true},
		{name: "not absolute", devicePath: "dev/sdz", wantErr: true},
		{name: "path traversal", devicePath: "/dev/../etc/passwd", wantErr: true},
		{name: "shell metacharacter", devicePath: "/dev/sdz; rm -rf /", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDevicePath(tt.devicePath)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCellID(t *testing.T) {
	tests := []struct {
		name    string
		cellID  string
		wantErr bool
	}{
		{name: "valid cell", cellID: "A1", wantErr: false},
		{name: "valid cell with underscore", cellID: "cell_07", wantErr: false},
		{name: "empty", cellID: "", wantErr: true},
		{name: "contains slash", cellID: "A1/../A2", wantErr: true},
		{name: "too long", cellID: string(make([]byte, 40)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCellID(tt.cellID)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFilePath(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name     string
		basePath string
		userPath string
		wantErr  bool
	}{
		{
			name:     "valid relative path",
			basePath: tempDir,
			userPath: "file.txt",
			wantErr:  false,
		},
		{
			name:     "valid subdirectory path",
			basePath: tempDir,
			userPath: "subdir/file.txt",
			wantErr:  false,
		},
		{
			name:     "path traversal attempt",
			basePath: tempDir,
			userPath: "../../../etc/passwd",
			wantErr:  true,
		},
		{
			name:     "absolute path",
			basePath: tempDir,
			userPath: "/etc/passwd",
			wantErr:  true,
		},
		{
			name:     "empty path",
			basePath: tempDir,
			userPath: "",
			wantErr:  true,
		},
		{
			name:     "current directory reference",
			basePath: tempDir,
			userPath: "./file.txt",
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateFilePath(tt.basePath, tt.userPath)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, result)
			} else {
				assert.NoError(t, err)
				assert.NotEmpty(t, result)
				assert.True(t, filepath.HasPrefix(result, tt.basePath))
			}
		})
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{name: "valid filename", filename: "document.txt", wantErr: false},
		{name: "valid filename with numbers", filename: "file123.pdf", wantErr: false},
		{name: "empty filename", filename: "", wantErr: true},
		{name: "filename with path separator", filename: "dir/file.txt", wantErr: true},
		{name: "filename with dangerous characters", filename: "file*.txt", wantErr: true},
		{name: "filename with path traversal", filename: "../file.txt", wantErr: true},
		{name: "very long filename", filename: string(make([]byte, 300)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePort(t *testing.T) {
	tests := []struct {
		name    string
		port    string
		wantErr bool
	}{
		{name: "valid port", port: "8080", wantErr: false},
		{name: "port 80", port: "80", wantErr: false},
		{name: "port 443", port: "443", wantErr: false},
		{name: "empty port", port: "", wantErr: true},
		{name: "invalid port format", port: "abc", wantErr: true},
		{name: "port zero", port: "0", wantErr: true},
		{name: "port too high", port: "70000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePort(tt.port)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConcurrency(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		wantErr     bool
	}{
		{name: "valid concurrency", concurrency: 2, wantErr: false},
		{name: "minimum", concurrency: 1, wantErr: false},
		{name: "maximum", concurrency: 64, wantErr: false},
		{name: "zero", concurrency: 0, wantErr: true},
		{name: "negative", concurrency: -1, wantErr: true},
		{name: "too large", concurrency: 65, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConcurrency(tt.concurrency)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   string
		wantErr bool
	}{
		{name: "valid non-empty value", field: "username", value: "john", wantErr: false},
		{name: "empty string", field: "username", value: "", wantErr: true},
		{name: "whitespace only", field: "username", value: "   ", wantErr: true},
		{name: "value with spaces", field: "full_name", value: "John Doe", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequired(tt.field, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.field)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
