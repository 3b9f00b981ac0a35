// Package github publishes generated documents to a GitHub repository using
// the contents API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	gogh "github.com/google/go-github/v68/github"
)

// File is one artifact to publish. Path is relative to Options.Dir.
type File struct {
	Path    string
	Content []byte
}

// Options selects where files are committed.
type Options struct {
	Repo    string // "owner/repo"
	Branch  string // empty means the repository's default branch
	Dir     string // directory inside the repository
	Message string // commit message
}

// Published describes a committed file.
type Published struct {
	Path    string `json:"path"`
	HTMLURL string `json:"html_url"`
	Commit  string `json:"commit"`
	Created bool   `json:"created"`
}

// Client wraps the GitHub API.
type Client struct {
	gh *gogh.Client
}

// New creates a GitHub client authenticated with the given token.
func New(token string) *Client {
	return &Client{
		gh: gogh.NewClient(nil).WithAuthToken(token),
	}
}

// WithBaseURL points the client at a different API root (GitHub Enterprise, tests).
func (c *Client) WithBaseURL(raw string) (*Client, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	c.gh.BaseURL = u
	return c, nil
}

// Publish creates or updates each file and returns what was committed.
func (c *Client) Publish(ctx context.Context, opts Options, files ...File) ([]Published, error) {
	owner, repo, err := splitRepo(opts.Repo)
	if err != nil {
		return nil, err
	}
	msg := opts.Message
	if msg == "" {
		msg = "Add generated document"
	}

	var out []Published
	for _, f := range files {
		p := strings.TrimPrefix(path.Join(opts.Dir, f.Path), "/")
		sha, err := c.existingSHA(ctx, owner, repo, p, opts.Branch)
		if err != nil {
			return out, err
		}

		fileOpts := &gogh.RepositoryContentFileOptions{
			Message: gogh.Ptr(msg),
			Content: f.Content,
		}
		if opts.Branch != "" {
			fileOpts.Branch = gogh.Ptr(opts.Branch)
		}

		var resp *gogh.RepositoryContentResponse
		if sha == "" {
			resp, _, err = c.gh.Repositories.CreateFile(ctx, owner, repo, p, fileOpts)
		} else {
			fileOpts.SHA = gogh.Ptr(sha)
			resp, _, err = c.gh.Repositories.UpdateFile(ctx, owner, repo, p, fileOpts)
		}
		if err != nil {
			return out, fmt.Errorf("committing %s: %w", p, err)
		}

		out = append(out, Published{
			Path:    p,
			HTMLURL: resp.GetContent().GetHTMLURL(),
			Commit:  resp.Commit.GetSHA(),
			Created: sha == "",
		})
	}
	return out, nil
}

// existingSHA returns the blob SHA of p, or "" when the file does not exist.
func (c *Client) existingSHA(ctx context.Context, owner, repo, p, branch string) (string, error) {
	var getOpts *gogh.RepositoryContentGetOptions
	if branch != "" {
		getOpts = &gogh.RepositoryContentGetOptions{Ref: branch}
	}
	file, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, p, getOpts)
	if err != nil {
		var ghErr *gogh.ErrorResponse
		if (resp != nil && resp.StatusCode == http.StatusNotFound) ||
			(errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("checking %s: %w", p, err)
	}
	if file == nil {
		return "", fmt.Errorf("%s is a directory", p)
	}
	return file.GetSHA(), nil
}

func splitRepo(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format %q, expected \"owner/repo\"", fullName)
	}
	return parts[0], parts[1], nil
}

// Comment posts a comment on an issue or pull request.
func (c *Client) Comment(ctx context.Context, fullName string, number int, body string) error {
	owner, repo, err := splitRepo(fullName)
	if err != nil {
		return err
	}
	_, _, err = c.gh.Issues.CreateComment(ctx, owner, repo, number, &gogh.IssueComment{Body: gogh.Ptr(body)})
	if err != nil {
		return fmt.Errorf("commenting on %s#%d: %w", fullName, number, err)
	}
	return nil
}
