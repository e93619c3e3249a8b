package gate

import (
	"deploy-wizard-cli/internal/domain"
	"errors"
	"strings"
)

// ErrTokenRequired blocks the Git setup step: the repository is private
// (or could not be seen) and no access token was entered.
var ErrTokenRequired = errors.New("access token required for private repository")

// ShouldPromptForToken reports whether the token prompt must be shown.
func ShouldPromptForToken(info *domain.RepositoryInfo) bool {
	return info != nil && info.IsPrivate
}

// CheckTokenRequirement returns ErrTokenRequired when the prompt is shown
// and the token is still blank.
func CheckTokenRequirement(info *domain.RepositoryInfo, token string) error {
	if ShouldPromptForToken(info) && strings.TrimSpace(token) == "" {
		return ErrTokenRequired
	}
	return nil
}

// ReselectBranch keeps selected when it is still offered, otherwise falls
// back to the first (default) branch.
func ReselectBranch(selected string, branches []string) string {
	if len(branches) == 0 {
		return ""
	}
	for _, branch := range branches {
		if branch == selected {
			return selected
		}
	}
	return branches[0]
}
