package vrf

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CLI shells out to the ecvrf CLI binary for keygen, prove and verify.
type CLI struct {
	binPath   string
	timeout   time.Duration
	secretKey string // hex, never logged
	publicKey []byte
	log       zerolog.Logger
}

// CLIConfig holds CLI prover configuration.
type CLIConfig struct {
	BinPath string
	// KeyPath optionally points at a file holding "secret <hex>\npublic <hex>".
	// When empty a fresh keypair is generated at startup.
	KeyPath string
	Timeout time.Duration // per invocation, default 30s
	Logger  zerolog.Logger
}

// NewCLI creates a CLI prover, loading or generating its VRF keypair.
func NewCLI(cfg CLIConfig) (*CLI, error) {
	if cfg.BinPath == "" {
		return nil, fmt.Errorf("vrf CLI path required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &CLI{
		binPath: cfg.BinPath,
		timeout: cfg.Timeout,
		log:     cfg.Logger.With().Str("component", "vrf").Logger(),
	}

	if cfg.KeyPath != "" {
		if err := c.loadKeypair(cfg.KeyPath); err != nil {
			return nil, err
		}
	} else {
		if err := c.generateKeypair(context.Background()); err != nil {
			return nil, err
		}
	}

	c.log.Info().Str("public_key", hex.EncodeToString(c.publicKey)).Msg("vrf prover ready")
	return c, nil
}

// PublicKey returns the proving public key.
func (c *CLI) PublicKey() []byte {
	return c.publicKey
}

// GenerateProof runs `prove` for the given seed.
func (c *CLI) GenerateProof(ctx context.Context, seed []byte) (Proof, error) {
	stdout, err := c.run(ctx, "prove",
		"--input", hex.EncodeToString(seed),
		"--secret-key", c.secretKey,
	)
	if err != nil {
		return Proof{}, &GenerationError{Stage: "prove", Err: err}
	}

	proofHex, outputHex, err := parseProveOutput(stdout)
	if err != nil {
		return Proof{}, &GenerationError{Stage: "prove", Err: err}
	}

	proof, err := hex.DecodeString(proofHex)
	if err != nil {
		return Proof{}, &GenerationError{Stage: "prove", Err: fmt.Errorf("decode proof hex: %w", err)}
	}
	output, err := hex.DecodeString(outputHex)
	if err != nil {
		return Proof{}, &GenerationError{Stage: "prove", Err: fmt.Errorf("decode output hex: %w", err)}
	}

	return Proof{Proof: proof, Output: output}, nil
}

// VerifyProof runs `verify`. A non-zero tool exit means the proof is
// invalid; failing to run the tool at all is a GenerationError.
func (c *CLI) VerifyProof(ctx context.Context, proof, output, publicKey, seed []byte) (bool, error) {
	_, err := c.run(ctx, "verify",
		"--proof", hex.EncodeToString(proof),
		"--output", hex.EncodeToString(output),
		"--public-key", hex.EncodeToString(publicKey),
		"--input", hex.EncodeToString(seed),
	)
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Tool ran and rejected the proof.
		return false, nil
	}
	return false, &GenerationError{Stage: "verify", Err: err}
}

// =============================================================================
// Keypair Management
// =============================================================================

func (c *CLI) generateKeypair(ctx context.Context) error {
	stdout, err := c.run(ctx, "keygen")
	if err != nil {
		return &GenerationError{Stage: "keygen", Err: err}
	}

	secretHex, publicHex, err := parseKeygenOutput(stdout)
	if err != nil {
		return &GenerationError{Stage: "keygen", Err: err}
	}

	publicKey, err := hex.DecodeString(publicHex)
	if err != nil {
		return &GenerationError{Stage: "keygen", Err: fmt.Errorf("decode public key hex: %w", err)}
	}

	c.secretKey = secretHex
	c.publicKey = publicKey
	return nil
}

func (c *CLI) loadKeypair(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read vrf keypair: %w", err)
	}

	var secretHex, publicHex string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		switch fields[0] {
		case "secret":
			secretHex = fields[1]
		case "public":
			publicHex = fields[1]
		}
	}
	if secretHex == "" || publicHex == "" {
		return fmt.Errorf("vrf keypair file %s: missing secret or public entry", path)
	}

	publicKey, err := hex.DecodeString(publicHex)
	if err != nil {
		return fmt.Errorf("vrf keypair file %s: decode public key: %w", path, err)
	}

	c.secretKey = secretHex
	c.publicKey = publicKey
	return nil
}

// =============================================================================
// Subprocess Plumbing
// =============================================================================

func (c *CLI) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("%s: %w", args[0], err)
	}
	return stdout.String(), nil
}

// =============================================================================
// Output Parsing
// =============================================================================

// parseProveOutput parses "Proof:  <hex>\nOutput: <hex>".
func parseProveOutput(stdout string) (proofHex, outputHex string, err error) {
	proofHex, err = prefixedLine(stdout, "Proof:")
	if err != nil {
		return "", "", err
	}
	outputHex, err = prefixedLine(stdout, "Output:")
	if err != nil {
		return "", "", err
	}
	return proofHex, outputHex, nil
}

// parseKeygenOutput parses "Secret key: <hex>\nPublic key: <hex>".
func parseKeygenOutput(stdout string) (secretHex, publicHex string, err error) {
	secretHex, err = prefixedLine(stdout, "Secret key:")
	if err != nil {
		return "", "", err
	}
	publicHex, err = prefixedLine(stdout, "Public key:")
	if err != nil {
		return "", "", err
	}
	return secretHex, publicHex, nil
}

func prefixedLine(stdout, prefix string) (string, error) {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), prefix); ok {
			value := strings.TrimSpace(rest)
			if value == "" {
				return "", fmt.Errorf("empty %q line in tool output", prefix)
			}
			return value, nil
		}
	}
	return "", fmt.Errorf("missing %q line in tool output", prefix)
}
