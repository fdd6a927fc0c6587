package git

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	httpsRemote = regexp.MustCompile(`^https?://(?:[^@/]+@)?[^/]+/([^/]+)/([^/]+)$`)
	sshRemote   = regexp.MustCompile(`^(?:ssh://)?git@[^:/]+[:/]([^/]+)/([^/]+)$`)
	gitRemote   = regexp.MustCompile(`^git://[^/]+/([^/]+)/([^/]+)$`)
)

// ParseRemoteURL extracts owner and repository name from a remote URL.
// Supported formats:
//   - HTTPS: https://github.com/owner/repo.git
//   - SSH: git@github.com:owner/repo.git or ssh://git@github.com/owner/repo
//   - Git protocol: git://github.com/owner/repo.git
func ParseRemoteURL(remoteURL string) (owner, repo string, err error) {
	remoteURL = strings.TrimSpace(remoteURL)
	remoteURL = strings.TrimSuffix(remoteURL, "/")
	remoteURL = strings.TrimSuffix(remoteURL, ".git")

	for _, re := range []*regexp.Regexp{httpsRemote, sshRemote, gitRemote} {
		if m := re.FindStringSubmatch(remoteURL); len(m) == 3 {
			return m[1], m[2], nil
		}
	}

	return "", "", fmt.Errorf("unrecognized git URL format: %s", remoteURL)
}
