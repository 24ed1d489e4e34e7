// Package images resolves an image name to a byte stream — plain or
// transparently decompressed — with a known uncompressed length when one is
// cheaply derivable.
package images

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"

	"janus/internal/digestcache"
	appErrors "janus/internal/errors"
)

// compoundExtensions is checked before the plain extension, so "test.img.gz"
// is classified by its full compound suffix rather than just ".gz". Capped
// at the two formats Open actually decompresses (gzip, zstd); anything else
// compressed is simply not listed as flashable.
var compoundExtensions = []string{".img.gz", ".img.zst"}
var plainExtensions = []string{".img", ".iso"}

// Image is an immutable descriptor of one source file, created on
// discovery and discarded on the next directory rescan.
type Image struct {
	Name              string     `json:"name"`
	Path              string     `json:"path"`
	SizeBytes         int64      `json:"size_bytes"`
	SizeHuman         string     `json:"size_human"`
	ModTime           time.Time  `json:"-"`
	Compressed        bool       `json:"compressed"`
	UncompressedBytes *int64     `json:"uncompressed_bytes,omitempty"`
	Digest            string     `json:"digest,omitempty"`
}

// classify returns the recognised suffix ("" if the file isn't a
// recognised image type) and whether that suffix implies compression.
func classify(name string) (suffix string, compressed bool, ok bool) {
	lower := strings.ToLower(name)
	for _, ext := range compoundExtensions {
		if strings.HasSuffix(lower, ext) {
			return ext, true, true
		}
	}
	for _, ext := range plainExtensions {
		if strings.HasSuffix(lower, ext) {
			return ext, false, true
		}
	}
	return "", false, false
}

// List scans dir for recognised image files, sorted by name.
func List(dir string) ([]Image, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("images: create dir: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("images: read dir: %w", err)
	}

	var result []Image
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		_, compressed, ok := classify(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		result = append(result, Image{
			Name:       entry.Name(),
			Path:       filepath.Join(dir, entry.Name()),
			SizeBytes:  info.Size(),
			SizeHuman:  humanize.Bytes(uint64(info.Size())),
			ModTime:    info.ModTime(),
			Compressed: compressed,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Resolve finds a single named image within dir.
func Resolve(dir, name string) (Image, error) {
	images, err := List(dir)
	if err != nil {
		return Image{}, err
	}
	for _, img := range images {
		if img.Name == name {
			return img, nil
		}
	}
	return Image{}, appErrors.NewImageNotFound("images.Resolve", fmt.Errorf("image %q not found", name))
}

// Open returns a stream of the image's uncompressed bytes and, when cheaply
// known, its uncompressed length. Plain images always know their length
// (the file size); gzip- and zstd-compressed images do not, since neither
// format exposes the decompressed size without reading the whole stream.
func Open(img Image) (io.ReadCloser, *int64, error) {
	f, err := os.Open(img.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, appErrors.NewImageNotFound("images.Open", err)
		}
		return nil, nil, appErrors.NewImageReadError("images.Open", err)
	}

	if !img.Compressed {
		size := img.SizeBytes
		return f, &size, nil
	}

	suffix, _, _ := classify(img.Name)
	switch suffix {
	case ".img.gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, appErrors.NewImageReadError("images.Open", err)
		}
		return gzipReadCloser{gz, f}, nil, nil
	case ".img.zst":
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, appErrors.NewImageReadError("images.Open", err)
		}
		return zstdReadCloser{dec, f}, nil, nil
	default:
		f.Close()
		return nil, nil, appErrors.NewImageReadError("images.Open",
			fmt.Errorf("unsupported compressed image suffix %q", suffix))
	}
}

// gzipReadCloser closes both the gzip reader and the underlying file.
type gzipReadCloser struct {
	*gzip.Reader
	f *os.File
}

func (g gzipReadCloser) Close() error {
	gzErr := g.Reader.Close()
	fErr := g.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}

// zstdReadCloser adapts *zstd.Decoder (whose Close returns nothing) to
// io.ReadCloser, and closes the underlying file too.
type zstdReadCloser struct {
	dec *zstd.Decoder
	f   *os.File
}

func (z zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z zstdReadCloser) Close() error {
	z.dec.Close()
	return z.f.Close()
}

// Digest returns the SHA-256 hex digest of img's uncompressed bytes — the
// same bytes the write stage streams to the device — consulting cache
// first and populating it on a miss. The cache key is the source file's
// path/size/mtime, so a compressed image's expensive decompress-and-hash
// only happens once per file version.
func Digest(ctx context.Context, cache *digestcache.Cache, img Image) (string, error) {
	if cache != nil {
		if digest, ok := cache.Lookup(ctx, img.Path, img.SizeBytes, img.ModTime); ok {
			return digest, nil
		}
	}

	stream, _, err := Open(img)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	h := sha256.New()
	if _, err := io.Copy(h, stream); err != nil {
		return "", appErrors.NewImageReadError("images.Digest", err)
	}
	digest := hex.EncodeToString(h.Sum(nil))

	if cache != nil {
		_ = cache.Put(ctx, img.Path, img.SizeBytes, img.ModTime, digest)
	}
	return digest, nil
}
