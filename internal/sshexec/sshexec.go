// Package sshexec opens authenticated command channels to container hosts
// and executes single commands, capturing their combined output.
package sshexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const maxLoginRetries = 3

var (
	// ErrLogin means the channel could not be authenticated even after
	// retries; callers treat this as a configuration or connectivity
	// problem, not something to retry further up the stack.
	ErrLogin = errors.New("ssh login failed")
	// ErrExec means the command could not be sent or did not complete
	// over an otherwise authenticated channel.
	ErrExec = errors.New("remote command failed")
)

// Credential identifies the SSH account used on a container host. KeyFile
// is resolved relative to the client's key directory.
type Credential struct {
	User       string
	KeyFile    string
	Passphrase string
}

type Executor interface {
	Run(ctx context.Context, host string, cred Credential, command string) (string, error)
}

var _ Executor = (*Client)(nil)

type Client struct {
	keyDir  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(keyDir string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		keyDir:  keyDir,
		timeout: timeout,
		logger:  logger.With("component", "sshexec"),
	}
}

// Run logs in to host (retrying the login up to 3 times) and executes a
// single command, returning its combined output. The context bounds the
// whole operation; expiry surfaces as ErrExec so callers treat it as
// transient.
func (c *Client) Run(ctx context.Context, host string, cred Credential, command string) (string, error) {
	signer, err := c.loadKey(cred)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLogin, err)
	}

	conn, err := c.dial(ctx, host, cred.User, signer)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	sess, err := conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: opening session on %s: %v", ErrExec, host, err)
	}
	defer sess.Close()

	// ssh sessions have no context support; close the connection when the
	// context expires so CombinedOutput unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	output, err := sess.CombinedOutput(command)
	if ctx.Err() != nil {
		return "", fmt.Errorf("%w: command on %s: %v", ErrExec, host, ctx.Err())
	}
	if err != nil {
		// A non-zero exit still produced output the caller may want to
		// inspect (docker prints "No such container" and exits 1).
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return string(output), nil
		}
		return "", fmt.Errorf("%w: command on %s: %v", ErrExec, host, err)
	}

	return string(output), nil
}

func (c *Client) dial(ctx context.Context, host, user string, signer ssh.Signer) (*ssh.Client, error) {
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.timeout,
	}

	addr := host
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, "22")
	}

	var lastErr error
	for try := 1; try <= maxLoginRetries; try++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLogin, host, ctx.Err())
		}

		c.logger.Debug("ssh login attempt", "host", host, "iteration", try)
		conn, err := ssh.Dial("tcp", addr, cfg)
		if err == nil {
			c.logger.Debug("ssh login success", "host", host, "iteration", try)
			return conn, nil
		}

		lastErr = err
		c.logger.Error("ssh login failed, retrying", "host", host, "iteration", try, "error", err)
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrLogin, host, maxLoginRetries, lastErr)
}

func (c *Client) loadKey(cred Credential) (ssh.Signer, error) {
	raw, err := os.ReadFile(filepath.Join(c.keyDir, cred.KeyFile))
	if err != nil {
		return nil, fmt.Errorf("reading private key %s: %w", cred.KeyFile, err)
	}

	if cred.Passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(raw, []byte(cred.Passphrase))
		if err != nil {
			return nil, fmt.Errorf("parsing private key %s: %w", cred.KeyFile, err)
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %s: %w", cred.KeyFile, err)
	}
	return signer, nil
}
