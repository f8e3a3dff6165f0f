// Package commands implements the airlock CLI: process, lint, scrub,
// runs, and version.
package commands

import (
	"io"
	"os"

	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/logger"
	"github.com/teranos/airlock/policy"
)

// loadRuntime assembles the per-run policy snapshot the way every
// command needs it: policy chain (or one explicit file), optional
// safe-outputs block, allow-list packs, resolved repository.
func loadRuntime(policyPath, safeOutputsPath, repoOverride string) (*policy.Runtime, error) {
	var p *policy.Policy
	var err error
	if policyPath != "" {
		p, err = policy.LoadFromFile(policyPath)
	} else {
		p, err = policy.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load policy")
	}

	if err := p.EnforceMinVersion(); err != nil {
		return nil, err
	}

	var so *policy.SafeOutputs
	if safeOutputsPath != "" {
		so, err = policy.LoadSafeOutputs(safeOutputsPath)
		if err != nil {
			return nil, err
		}
	}

	packs, err := policy.LoadPacks(p.Packs)
	if err != nil {
		return nil, err
	}

	repo := repoOverride
	if repo == "" {
		repo = p.Repository
	}
	if repo == "" {
		// Best effort: lint and scrub work fine outside a worktree
		repo, err = policy.DetectRepository(".")
		if err != nil {
			logger.Debugw("No repository detected", logger.FieldError, err)
			repo = ""
		}
	}

	rt := policy.NewRuntime(p, so, packs, repo)

	logger.Infow("Policy loaded",
		logger.FieldComponent, "cli",
		logger.FieldRepo, repo,
		"packs", len(packs),
		"safe_outputs", safeOutputsPath != "",
	)
	return rt, nil
}

// readInput reads the agent output stream from a file, or from stdin
// when path is "-".
func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", errors.Wrap(err, "failed to read stdin")
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}
	return string(data), nil
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
