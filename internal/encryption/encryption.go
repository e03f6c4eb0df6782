package encryption

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"baqup/internal/config"
	"baqup/internal/logger"

	"go.uber.org/zap"
)

// Encryptor encrypts backup streams with a GPG public key before they
// reach storage. A nil-keyed encryptor passes data through untouched.
type Encryptor struct {
	publicKeyPath string
}

// NewEncryptor validates the configured key and the gpg binary. An empty
// key path disables encryption.
func NewEncryptor(cfg config.EncryptionConfig) (*Encryptor, error) {
	if cfg.PublicKeyPath == "" {
		return &Encryptor{}, nil
	}
	if _, err := os.Stat(cfg.PublicKeyPath); err != nil {
		return nil, fmt.Errorf("encryption key %s: %w", cfg.PublicKeyPath, err)
	}
	if _, err := exec.LookPath("gpg"); err != nil {
		return nil, fmt.Errorf("gpg binary not found in PATH: %w", err)
	}

	logger.Log.Info("Backup encryption enabled",
		zap.String("publicKeyPath", cfg.PublicKeyPath),
	)
	return &Encryptor{publicKeyPath: cfg.PublicKeyPath}, nil
}

// Enabled reports whether streams will be encrypted.
func (e *Encryptor) Enabled() bool {
	return e.publicKeyPath != ""
}

// Extension is the suffix appended to encrypted object names.
func (e *Encryptor) Extension() string {
	if e.Enabled() {
		return ".gpg"
	}
	return ""
}

// Encrypt wraps the reader in a gpg encryption stage. The returned
// ReadCloser must be fully consumed and closed; closing it reaps the gpg
// process.
func (e *Encryptor) Encrypt(ctx context.Context, r io.Reader) (io.ReadCloser, error) {
	if !e.Enabled() {
		return io.NopCloser(r), nil
	}

	cmd := exec.CommandContext(ctx, "gpg",
		"--batch",
		"--yes",
		"--trust-model", "always",
		"--recipient-file", e.publicKeyPath,
		"--encrypt",
		"--output", "-",
	)
	cmd.Stdin = r
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("gpg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start gpg: %w", err)
	}

	return &encryptedStream{reader: stdout, cmd: cmd}, nil
}

type encryptedStream struct {
	reader io.ReadCloser
	cmd    *exec.Cmd
}

func (s *encryptedStream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

func (s *encryptedStream) Close() error {
	s.reader.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("gpg exited: %w", err)
	}
	return nil
}
