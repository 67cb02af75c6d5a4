// Package ssh is the transport used to reach compute nodes: key handling,
// strict known_hosts verification, remote command execution and SFTP file
// movement.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	xssh "golang.org/x/crypto/ssh"
)

// Client holds everything needed to reach one node. Retries apply to
// transport failures only; a command that ran to completion is never rerun.
type Client struct {
	Addr       string
	User       string
	Signer     xssh.Signer
	KnownHosts xssh.HostKeyCallback
	Timeout    time.Duration
	Retries    int
	Backoff    time.Duration
}

func (c *Client) makeConfig() (*xssh.ClientConfig, error) {
	if c.Signer == nil {
		return nil, errors.New("ssh: signer required")
	}
	if c.KnownHosts == nil {
		return nil, errors.New("ssh: known_hosts callback required")
	}
	return &xssh.ClientConfig{
		User:            c.User,
		Auth:            []xssh.AuthMethod{xssh.PublicKeys(c.Signer)},
		HostKeyCallback: c.KnownHosts,
		Timeout:         c.Timeout,
	}, nil
}

// RunCommand executes a remote command and returns its split output streams
// and exit code. Dial and session failures are retried with linear backoff;
// a non-zero exit is a result, not an error.
func (c *Client) RunCommand(ctx context.Context, command string) (stdout, stderr string, exitCode int, err error) {
	cfg, err := c.makeConfig()
	if err != nil {
		return "", "", -1, err
	}

	retries := c.Retries
	if retries < 0 {
		retries = 0
	}
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		select {
		case <-ctx.Done():
			return "", "", -1, ctx.Err()
		default:
		}

		out, errOut, code, runErr := c.runOnce(cfg, command)
		if runErr == nil {
			return out, errOut, code, nil
		}
		lastErr = runErr

		if attempt < retries {
			select {
			case <-ctx.Done():
				return "", "", -1, ctx.Err()
			case <-time.After(backoff * time.Duration(attempt+1)):
			}
		}
	}
	return "", "", -1, lastErr
}

func (c *Client) runOnce(cfg *xssh.ClientConfig, command string) (string, string, int, error) {
	cli, err := xssh.Dial("tcp", c.Addr, cfg)
	if err != nil {
		return "", "", -1, fmt.Errorf("dial %s: %w", c.Addr, err)
	}
	defer cli.Close()

	session, err := cli.NewSession()
	if err != nil {
		return "", "", -1, fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	err = session.Run(command)
	if err == nil {
		return stdout.String(), stderr.String(), 0, nil
	}
	var exitErr *xssh.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
	}
	return "", "", -1, fmt.Errorf("run command: %w", err)
}

// Dial establishes an SSH connection honoring context cancellation. The
// caller is responsible for closing the returned client.
func Dial(ctx context.Context, c *Client) (*xssh.Client, error) {
	cfg, err := c.makeConfig()
	if err != nil {
		return nil, err
	}
	type res struct {
		cli *xssh.Client
		err error
	}
	ch := make(chan res, 1)
	go func() {
		cli, err := xssh.Dial("tcp", c.Addr, cfg)
		ch <- res{cli: cli, err: err}
	}()
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.cli != nil {
				_ = r.cli.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		return r.cli, r.err
	}
}
