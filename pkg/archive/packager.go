// Package archive turns raw per-platform binaries into version-qualified
// zip archives ready to attach to a release.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/blackbox-fetch/shipyard/pkg/semver"
)

// ErrMissingArtifact marks a required platform binary that is absent at
// packaging or publish time. Partial artifact sets never reach the publish
// stage.
var ErrMissingArtifact = errors.New("required artifact missing")

// Archive is one packaged platform binary.
type Archive struct {
	Platform string
	Version  semver.Version
	Path     string
}

// Packager owns the naming scheme and output directory for a release's
// archives.
type Packager struct {
	Tool   string
	OutDir string
}

// BinaryName is the canonical raw binary name for a platform.
func (p *Packager) BinaryName(platform string) string {
	return p.Tool + "_" + platform
}

// ArchiveName is a pure function of (tool, version, platform), so packaging
// identical inputs twice yields the same name and overwrites instead of
// duplicating.
func (p *Packager) ArchiveName(v semver.Version, platform string) string {
	return fmt.Sprintf("%s_%s_%s.zip", p.Tool, v, platform)
}

// entryName is the binary's name inside the archive. Windows binaries keep
// their .exe suffix so the extracted file runs as-is.
func (p *Packager) entryName(platform string) string {
	if strings.HasPrefix(platform, "windows") {
		return p.Tool + ".exe"
	}
	return p.Tool
}

// Package compresses the raw binary at rawPath into the archive for
// (version, platform). A missing or unreadable raw binary is
// ErrMissingArtifact. Returns the archive and the sha256 of the raw binary.
func (p *Packager) Package(platform, rawPath string, v semver.Version) (Archive, string, error) {
	src, err := os.Open(rawPath)
	if err != nil {
		return Archive{}, "", fmt.Errorf("package %s: %w: %v", platform, ErrMissingArtifact, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return Archive{}, "", fmt.Errorf("package %s: stat: %w", platform, err)
	}
	if info.IsDir() {
		return Archive{}, "", fmt.Errorf("package %s: %w: %q is a directory", platform, ErrMissingArtifact, rawPath)
	}

	if err := os.MkdirAll(p.OutDir, 0o755); err != nil {
		return Archive{}, "", fmt.Errorf("package %s: mkdir: %w", platform, err)
	}
	outPath := filepath.Join(p.OutDir, p.ArchiveName(v, platform))
	out, err := os.Create(outPath)
	if err != nil {
		return Archive{}, "", fmt.Errorf("package %s: create archive: %w", platform, err)
	}

	zw := zip.NewWriter(out)
	hdr := &zip.FileHeader{
		Name:   p.entryName(platform),
		Method: zip.Deflate,
	}
	hdr.SetMode(0o755)
	hdr.Modified = info.ModTime()
	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		out.Close()
		return Archive{}, "", fmt.Errorf("package %s: zip entry: %w", platform, err)
	}

	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(entry, hash), src); err != nil {
		zw.Close()
		out.Close()
		return Archive{}, "", fmt.Errorf("package %s: compress: %w", platform, err)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return Archive{}, "", fmt.Errorf("package %s: finalize: %w", platform, err)
	}
	if err := out.Close(); err != nil {
		return Archive{}, "", fmt.Errorf("package %s: close: %w", platform, err)
	}

	return Archive{
		Platform: platform,
		Version:  v,
		Path:     outPath,
	}, hex.EncodeToString(hash.Sum(nil)), nil
}

// PackageAll packages every required platform from the raw artifact paths
// in rawPaths. Any missing platform halts the run before a partial set can
// move on.
func (p *Packager) PackageAll(platforms []string, rawPaths map[string]string, v semver.Version) ([]Archive, error) {
	archives := make([]Archive, 0, len(platforms))
	for _, platform := range platforms {
		raw, ok := rawPaths[platform]
		if !ok || strings.TrimSpace(raw) == "" {
			return nil, fmt.Errorf("package all: platform %s: %w", platform, ErrMissingArtifact)
		}
		a, _, err := p.Package(platform, raw, v)
		if err != nil {
			return nil, fmt.Errorf("package all: %w", err)
		}
		archives = append(archives, a)
	}
	return archives, nil
}
