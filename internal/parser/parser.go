package parser

import (
	"deploy-wizard-cli/internal/domain"
	"regexp"
	"strings"
)

// Accepted repository URL shapes. Owner and repo are single path segments;
// an optional ".git" suffix is stripped, and HTTPS URLs may end with one slash.
// A repo segment that is only ".git" is rejected.
var (
	httpsPattern = regexp.MustCompile(`^https://([^/\s]+)/([^/\s]+)/([^/\s]+?)(?:\.git)?/?$`)
	sshPattern   = regexp.MustCompile(`^git@([^:/\s]+):([^/\s]+)/([^/\s]+?)(?:\.git)?$`)
)

const malformedMessage = "invalid repository URL format"

// Parse extracts the host, owner and repository name from a Git URL.
// It accepts https://host/owner/repo[.git][/] and git@host:owner/repo[.git].
func Parse(repoURL string) (domain.RepositoryReference, error) {
	trimmed := strings.TrimSpace(repoURL)

	for _, pattern := range []*regexp.Regexp{httpsPattern, sshPattern} {
		matches := pattern.FindStringSubmatch(trimmed)
		if matches == nil {
			continue
		}
		ref := domain.RepositoryReference{
			Host:  strings.ToLower(matches[1]),
			Owner: matches[2],
			Repo:  matches[3],
		}
		if ref.Owner == "" || strings.TrimSuffix(ref.Repo, ".git") == "" {
			break
		}
		return ref, nil
	}

	return domain.RepositoryReference{}, &domain.ResolutionError{
		Kind:    domain.KindMalformedURL,
		Message: malformedMessage,
	}
}

// LooksLikeHostingURL is the cheap pre-check run before any resolution:
// the URL must be non-empty and mention one of the known hosting hosts.
func LooksLikeHostingURL(repoURL string, hosts []string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(repoURL))
	if trimmed == "" {
		return false
	}
	for _, host := range hosts {
		if host != "" && strings.Contains(trimmed, strings.ToLower(host)) {
			return true
		}
	}
	return false
}
