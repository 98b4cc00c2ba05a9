package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const (
	defaultSSHPort    = 22
	defaultSSHTimeout = 10 * time.Second
)

var defaultKeyFiles = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// SSHConfig configures SSHRunner.
type SSHConfig struct {
	Port    int
	Timeout time.Duration
	// KeyFiles are private keys offered in addition to the ssh-agent. When
	// empty the usual ~/.ssh identities are tried.
	KeyFiles []string
}

// SSHRunner runs commands on lookup hosts over SSH. Connections are reused
// per user@host for the lifetime of the runner.
type SSHRunner struct {
	cfg    SSHConfig
	logger *zap.Logger

	mu        sync.Mutex
	clients   map[string]*ssh.Client
	agentConn net.Conn
}

// NewSSHRunner returns an SSHRunner. Call Close when done.
func NewSSHRunner(logger *zap.Logger, cfg SSHConfig) *SSHRunner {
	if cfg.Port == 0 {
		cfg.Port = defaultSSHPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultSSHTimeout
	}
	return &SSHRunner{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*ssh.Client),
	}
}

// Run executes command on host as user.
func (r *SSHRunner) Run(ctx context.Context, host, user, command string) (string, error) {
	client, err := r.client(ctx, host, user)
	if err != nil {
		return "", err
	}

	session, err := client.NewSession()
	if err != nil {
		// the cached connection is dead; the next call dials again
		r.evict(user+"@"+host, client)
		return "", fmt.Errorf("ssh session on %s@%s: %w", user, host, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			var exitErr *ssh.ExitError
			if !errors.As(err, &exitErr) {
				r.evict(user+"@"+host, client)
			}
			return "", fmt.Errorf("ssh %q: %w (stderr: %s)", command, err, strings.TrimSpace(stderr.String()))
		}
	}

	r.logger.Debug("Remote command finished",
		zap.String("host", host),
		zap.String("user", user),
		zap.String("command", command),
		zap.String("stdout", strings.TrimSpace(stdout.String())))
	return stdout.String(), nil
}

// Close closes every cached connection.
func (r *SSHRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, c := range r.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.clients, key)
	}
	if r.agentConn != nil {
		_ = r.agentConn.Close()
		r.agentConn = nil
	}
	return firstErr
}

func (r *SSHRunner) evict(key string, c *ssh.Client) {
	r.mu.Lock()
	if r.clients[key] == c {
		delete(r.clients, key)
	}
	r.mu.Unlock()

	_ = c.Close()
	r.logger.Debug("Dropped broken SSH connection", zap.String("target", key))
}

func (r *SSHRunner) client(ctx context.Context, host, user string) (*ssh.Client, error) {
	key := user + "@" + host

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[key]; ok {
		return c, nil
	}

	auth, err := r.authMethods()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User: user,
		Auth: auth,
		// lookup hosts are bastions reached the same way as `ssh -oStrictHostKeyChecking=no`
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.cfg.Timeout,
	}

	addr := net.JoinHostPort(host, strconv.Itoa(r.cfg.Port))
	dialer := &net.Dialer{Timeout: r.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", key, err)
	}

	client := ssh.NewClient(c, chans, reqs)
	r.clients[key] = client
	r.logger.Debug("SSH connection established", zap.String("target", key))
	return client, nil
}

func (r *SSHRunner) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if r.agentConn == nil {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				r.logger.Warn("Could not connect to ssh-agent", zap.String("socket", sock), zap.Error(err))
			} else {
				r.agentConn = conn
			}
		}
		if r.agentConn != nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(r.agentConn).Signers))
		}
	}

	keyFiles := r.cfg.KeyFiles
	explicit := len(keyFiles) > 0
	if !explicit {
		if home, err := os.UserHomeDir(); err == nil {
			for _, name := range defaultKeyFiles {
				keyFiles = append(keyFiles, filepath.Join(home, ".ssh", name))
			}
		}
	}

	var signers []ssh.Signer
	for _, path := range keyFiles {
		pem, err := os.ReadFile(path)
		if err != nil {
			if explicit {
				return nil, fmt.Errorf("reading ssh key: %w", err)
			}
			continue
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			if explicit {
				return nil, fmt.Errorf("parsing ssh key %q: %w", path, err)
			}
			r.logger.Debug("Skipping unusable ssh key", zap.String("path", path), zap.Error(err))
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no ssh credentials: set SSH_AUTH_SOCK or --ssh-key")
	}
	return methods, nil
}
