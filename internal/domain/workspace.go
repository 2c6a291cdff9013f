package domain

import (
	"path/filepath"

	"github.com/google/uuid"
)

// BuildUserWorkspacePath returns the workspace directory of a user,
// relative to the configured workspace root.
func BuildUserWorkspacePath(root string, userID uuid.UUID) string {
	return filepath.Join(root, "users", userID.String(), "workflows")
}

// BuildWorkflowWorkspacePath returns the workspace directory of one
// workflow. Restarts reuse the workspace of the run they restart, so
// this is only called for fresh runs.
func BuildWorkflowWorkspacePath(root string, userID, workflowID uuid.UUID) string {
	return filepath.Join(BuildUserWorkspacePath(root, userID), workflowID.String())
}
