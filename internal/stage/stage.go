// Package stage moves task inputs into sandboxes before launch. Directives
// ride on the task description; each one names a source, an optional target
// relative to the sandbox and an action.
package stage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gvallee/go_util/pkg/util"
	"github.com/rs/zerolog/log"

	gssh "github.com/pilotrun/pilotrun/internal/ssh"
	"github.com/pilotrun/pilotrun/pkg/api"
)

// Staging actions. Transfer is the default and behaves like copy locally;
// the distinction matters for remote staging, where transfer crosses the
// wire and copy stays on the target filesystem.
const (
	ActionTransfer = "transfer"
	ActionCopy     = "copy"
	ActionLink     = "link"
	ActionMove     = "move"
)

// ResolveTarget maps a directive onto its final path. An empty target puts
// the source basename into the sandbox root; a relative target is joined to
// the sandbox; an absolute target is used as-is.
func ResolveTarget(sandboxDir string, d api.StageDirective) string {
	switch {
	case d.Target == "":
		return filepath.Join(sandboxDir, filepath.Base(d.Source))
	case filepath.IsAbs(d.Target):
		return d.Target
	default:
		return filepath.Join(sandboxDir, d.Target)
	}
}

// Checksum returns the hex sha256 of a file.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// LocalStager resolves directives within one filesystem.
type LocalStager struct{}

// StageIn runs all directives against the sandbox. Copies are verified by
// checksum; links are hard links; moves rename.
func (LocalStager) StageIn(ctx context.Context, sandboxDir string, directives []api.StageDirective) error {
	for _, d := range directives {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !util.FileExists(d.Source) {
			return fmt.Errorf("stage source missing: %s", d.Source)
		}
		target := ResolveTarget(sandboxDir, d)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("create target dir: %w", err)
		}

		action := d.Action
		if action == "" {
			action = ActionTransfer
		}
		log.Debug().Str("source", d.Source).Str("target", target).Str("action", action).Msg("staging input")

		switch action {
		case ActionTransfer, ActionCopy:
			if err := copyVerified(d.Source, target); err != nil {
				return fmt.Errorf("stage %s -> %s: %w", d.Source, target, err)
			}
		case ActionLink:
			_ = os.Remove(target)
			if err := os.Link(d.Source, target); err != nil {
				return fmt.Errorf("link %s -> %s: %w", d.Source, target, err)
			}
		case ActionMove:
			if err := os.Rename(d.Source, target); err != nil {
				return fmt.Errorf("move %s -> %s: %w", d.Source, target, err)
			}
		default:
			return fmt.Errorf("unknown staging action: %s", action)
		}
	}
	return nil
}

// copyVerified copies a file and confirms the destination checksum matches
// the source before declaring success.
func copyVerified(src, dst string) error {
	want, err := Checksum(src)
	if err != nil {
		return fmt.Errorf("checksum source: %w", err)
	}
	if err := util.CopyFile(src, dst); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	got, err := Checksum(dst)
	if err != nil {
		return fmt.Errorf("checksum target: %w", err)
	}
	if got != want {
		_ = os.Remove(dst)
		return fmt.Errorf("checksum mismatch: expected %s, got %s", want, got)
	}
	return nil
}

// RemoteStager pushes inputs into a sandbox on another node over SFTP and
// verifies every transfer against the remote sha256.
type RemoteStager struct {
	Client *gssh.Client
}

// StageIn pushes all directives to the remote sandbox. One SSH connection
// serves the whole batch.
func (s *RemoteStager) StageIn(ctx context.Context, remoteSandbox string, directives []api.StageDirective) error {
	if len(directives) == 0 {
		return nil
	}
	cli, err := gssh.Dial(ctx, s.Client)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer cli.Close()

	for _, d := range directives {
		if !util.FileExists(d.Source) {
			return fmt.Errorf("stage source missing: %s", d.Source)
		}
		target := resolveRemoteTarget(remoteSandbox, d)

		want, err := Checksum(d.Source)
		if err != nil {
			return fmt.Errorf("checksum source: %w", err)
		}
		if err := gssh.PushFile(ctx, cli, d.Source, target); err != nil {
			return fmt.Errorf("push %s -> %s: %w", d.Source, target, err)
		}
		if err := s.verifyRemote(ctx, target, want); err != nil {
			return fmt.Errorf("verify %s: %w", target, err)
		}
		log.Debug().Str("source", d.Source).Str("target", target).Msg("staged input remotely")
	}
	return nil
}

// Fetch pulls one file back from the remote node, typically task output.
func (s *RemoteStager) Fetch(ctx context.Context, remotePath, localPath string) error {
	cli, err := gssh.Dial(ctx, s.Client)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer cli.Close()
	return gssh.PullFile(ctx, cli, remotePath, localPath)
}

func (s *RemoteStager) verifyRemote(ctx context.Context, remotePath, want string) error {
	cmd := fmt.Sprintf("sha256sum '%s' | cut -d' ' -f1", remotePath)
	stdout, stderr, code, err := s.Client.RunCommand(ctx, cmd)
	if err != nil {
		return fmt.Errorf("remote checksum: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("remote checksum exited %d: %s", code, strings.TrimSpace(stderr))
	}
	got := strings.TrimSpace(stdout)
	if got != want {
		// Cleanup failed transfer
		_, _, _, _ = s.Client.RunCommand(ctx, fmt.Sprintf("rm -f '%s'", remotePath))
		return fmt.Errorf("checksum mismatch: expected %s, got %s", want, got)
	}
	return nil
}

// resolveRemoteTarget mirrors ResolveTarget with POSIX path semantics on
// the remote side.
func resolveRemoteTarget(remoteSandbox string, d api.StageDirective) string {
	switch {
	case d.Target == "":
		return remoteSandbox + "/" + filepath.Base(d.Source)
	case strings.HasPrefix(d.Target, "/"):
		return d.Target
	default:
		return remoteSandbox + "/" + d.Target
	}
}
