// Package digest checks file contents against the digests recorded in a
// package header by running the system checksum tools.
package digest

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/zmanda/manifest-restore/internal/execx"
)

// ErrUnsupportedAlgorithm indicates no checksum tool handles the algorithm.
var ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")

// Verifier checks a file against a declared digest.
type Verifier interface {
	// Verify reports whether the content at path matches digest.
	Verify(ctx context.Context, algo int, digest, path string) (bool, error)
}

// tools maps header digest algorithm ids to checksum programs. Id 0 means
// the header carries no algorithm tag, in which case digests are MD5.
var tools = map[int]string{
	0:  "md5sum",
	1:  "md5sum",
	2:  "sha1sum",
	8:  "sha256sum",
	9:  "sha384sum",
	10: "sha512sum",
	11: "sha224sum",
}

// Tool returns the checksum program for algo.
func Tool(algo int) (string, error) {
	tool, ok := tools[algo]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, algo)
	}
	return tool, nil
}

// CommandVerifier implements Verifier by running "<tool> --quiet -c -".
type CommandVerifier struct {
	runner execx.Runner
}

// NewCommandVerifier creates a new CommandVerifier.
func NewCommandVerifier(runner execx.Runner) *CommandVerifier {
	return &CommandVerifier{runner: runner}
}

// Verify feeds "<digest> <path>" to the checksum tool. An exit status of 1
// is a mismatch; any other failure is an error.
func (v *CommandVerifier) Verify(ctx context.Context, algo int, digest, path string) (bool, error) {
	if digest == "" {
		return false, fmt.Errorf("no digest recorded for %s", path)
	}
	tool, err := Tool(algo)
	if err != nil {
		return false, err
	}

	_, err = v.runner.Run(ctx, []byte(digest+"  "+path+"\n"), tool, "--quiet", "-c", "-")
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("failed to verify %s: %w", path, err)
}
