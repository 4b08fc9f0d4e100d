package buildfan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const buildTimeout = 30 * time.Minute

// CommandBuilder runs the external build command for each platform. The
// build itself is an outside collaborator; this wrapper only enforces the
// artifact contract.
type CommandBuilder struct {
	// Template is the shell command with {platform} and {output}
	// placeholders, run once per platform.
	Template string
	// Dir is the working directory for build commands.
	Dir string
	// OutDir receives raw artifacts named <tool>_<platform>.
	OutDir string
	// Tool names the binary being built.
	Tool string
	// Stdout and Stderr stream build output; nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// Func returns the BuildFunc the coordinator fans out.
func (b *CommandBuilder) Func() BuildFunc {
	return func(ctx context.Context, platform string) (Artifact, error) {
		outPath := filepath.Join(b.OutDir, b.Tool+"_"+platform)
		if err := os.MkdirAll(b.OutDir, 0o755); err != nil {
			return Artifact{}, fmt.Errorf("prepare output dir: %w", err)
		}

		script := strings.NewReplacer(
			"{platform}", platform,
			"{output}", outPath,
		).Replace(b.Template)

		cctx, cancel := context.WithTimeout(ctx, buildTimeout)
		defer cancel()

		cmd := exec.CommandContext(cctx, "sh", "-c", script)
		cmd.Dir = b.Dir
		cmd.Stdout = b.Stdout
		cmd.Stderr = b.Stderr
		cmd.Env = append(os.Environ(),
			"SHIPYARD_PLATFORM="+platform,
			"SHIPYARD_OUTPUT="+outPath,
		)
		if err := cmd.Run(); err != nil {
			return Artifact{}, fmt.Errorf("%w: %v", ErrBuildFailure, err)
		}

		sum, err := fileChecksum(outPath)
		if err != nil {
			return Artifact{}, fmt.Errorf("%w: %v", ErrBuildFailure, err)
		}
		return Artifact{Platform: platform, Path: outPath, Checksum: sum}, nil
	}
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
