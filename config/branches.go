package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"

	"whatsapp-branch-bot/types"

	"github.com/tidwall/jsonc"
)

var (
	ErrNoBranches      = errors.New("branch list is empty")
	ErrInvalidBranchID = errors.New("invalid branch id")
	ErrDuplicateBranch = errors.New("duplicate branch id")
	branchIDPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// LoadBranches reads the ordered branch list. Comments in the file are allowed.
func LoadBranches(path string) ([]types.Branch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read branches file: %w", err)
	}
	return ParseBranches(data)
}

// ParseBranches decodes and validates a branch list.
// Ids name credential directories, so they must be filesystem safe.
func ParseBranches(data []byte) ([]types.Branch, error) {
	var branches []types.Branch
	if err := json.Unmarshal(jsonc.ToJSON(data), &branches); err != nil {
		return nil, fmt.Errorf("decode branches: %w", err)
	}
	if len(branches) == 0 {
		return nil, ErrNoBranches
	}

	seen := make(map[string]struct{}, len(branches))
	for i, b := range branches {
		if !branchIDPattern.MatchString(b.ID) {
			return nil, fmt.Errorf("%w at index %d: %q", ErrInvalidBranchID, i, b.ID)
		}
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBranch, b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	return branches, nil
}
