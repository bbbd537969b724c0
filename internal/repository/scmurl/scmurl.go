// Package scmurl canonicalizes source-repository URLs to a single form
// across the git+ssh / scm: / bare-https variants registries report,
// per §4.3.
package scmurl

import (
	"net/url"
	"regexp"
	"strings"
)

// Normalized is the canonical shape of a recognized SCM URL.
type Normalized struct {
	Host          string // "github" | "gitlab" | "other"
	Owner         string
	Repo          string
	NormalizedURL string
	Directory     string // monorepo subdirectory, if present; "" otherwise
}

var (
	gitPlusPrefix = regexp.MustCompile(`^git\+`)
	sshGitPrefix  = regexp.MustCompile(`^(?:git\+)?ssh://(?:git@)?`)
	scmGitPrefix  = regexp.MustCompile(`^scm:git:`)
	scmSvnPrefix  = regexp.MustCompile(`^scm:svn:`)
	shorthandSSH  = regexp.MustCompile(`^git@([^:]+):(.+)$`)
)

// Normalize returns nil for unparseable input, otherwise the canonical
// {host, owner, repo, normalized_url, directory} record, where
// normalized_url is the https form without a trailing ".git".
func Normalize(raw string) *Normalized {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	s := raw
	s = scmGitPrefix.ReplaceAllString(s, "")
	s = scmSvnPrefix.ReplaceAllString(s, "")
	s = gitPlusPrefix.ReplaceAllString(s, "")

	if m := shorthandSSH.FindStringSubmatch(s); m != nil {
		s = "https://" + m[1] + "/" + m[2]
	}
	s = sshGitPrefix.ReplaceAllString(s, "https://")

	if strings.HasPrefix(s, "git://") {
		s = "https://" + strings.TrimPrefix(s, "git://")
	}
	if strings.HasPrefix(s, "http://") {
		s = "https://" + strings.TrimPrefix(s, "http://")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	u.Scheme = "https"

	path := strings.TrimSuffix(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return nil
	}
	owner, repo := segments[0], segments[1]
	directory := ""
	if len(segments) > 2 {
		directory = strings.Join(segments[2:], "/")
	}

	host := hostKind(u.Hostname())

	normalizedURL := "https://" + u.Hostname() + "/" + owner + "/" + repo

	return &Normalized{
		Host:          host,
		Owner:         owner,
		Repo:          repo,
		NormalizedURL: normalizedURL,
		Directory:     directory,
	}
}

func hostKind(hostname string) string {
	h := strings.ToLower(hostname)
	switch {
	case h == "github.com" || strings.HasSuffix(h, ".github.com"):
		return "github"
	case h == "gitlab.com" || strings.HasSuffix(h, ".gitlab.com"):
		return "gitlab"
	default:
		return "other"
	}
}
