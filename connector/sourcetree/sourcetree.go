// Package sourcetree implements the "sourcetree" connector: it clones
// (or opens an already-cloned) git working tree and extracts its
// recent commit history. Grounded on the donor's go-git-based repo
// plugin, adapted from a convergence check (does the tree match a
// declared state) into a one-shot extraction.
package sourcetree

import (
	"fmt"
	"os"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/runbookctl/engine/internal/registry"
	"github.com/runbookctl/engine/internal/schema"
)

// OutputSchema is the schema every sourcetree connector instance produces.
var OutputSchema = schema.Schema{Name: "commit_history", Version: "v1"}

// Commit is one entry in the extracted history.
type Commit struct {
	Hash    string    `msgpack:"hash"`
	Author  string    `msgpack:"author"`
	Message string    `msgpack:"message"`
	When    time.Time `msgpack:"when"`
}

const defaultMaxCommits = 50

type connector struct{}

func (c *connector) Name() string               { return "sourcetree" }
func (c *connector) OutputSchema() schema.Schema { return OutputSchema }

// Extract opens the repository at properties["path"], cloning it
// first from properties["url"] if the path does not yet contain one,
// and returns up to max_commits log entries starting at HEAD.
func (c *connector) Extract(properties map[string]any) (schema.Message, error) {
	dest, ok := properties["path"].(string)
	if !ok || dest == "" {
		return schema.Message{}, fmt.Errorf("sourcetree connector: properties.path is required")
	}

	repo, err := openOrClone(dest, properties)
	if err != nil {
		return schema.Message{}, err
	}

	head, err := repo.Head()
	if err != nil {
		return schema.Message{}, fmt.Errorf("sourcetree connector: resolving HEAD: %w", err)
	}

	logIter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return schema.Message{}, fmt.Errorf("sourcetree connector: reading log: %w", err)
	}

	max := defaultMaxCommits
	if v, ok := properties["max_commits"].(int); ok && v > 0 {
		max = v
	}

	var commits []any
	count := 0
	err = logIter.ForEach(func(c *object.Commit) error {
		if count >= max {
			return nil
		}
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Message: c.Message,
			When:    c.Author.When,
		})
		count++
		return nil
	})
	if err != nil {
		return schema.Message{}, fmt.Errorf("sourcetree connector: iterating log: %w", err)
	}

	return schema.Message{
		ID:      "sourcetree:" + dest,
		Content: commits,
		Schema:  OutputSchema,
	}, nil
}

func openOrClone(dest string, properties map[string]any) (*git.Repository, error) {
	if _, err := os.Stat(dest); err == nil {
		repo, err := git.PlainOpen(dest)
		if err == nil {
			return repo, nil
		}
	}

	url, ok := properties["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("sourcetree connector: %q is not a git repository and no properties.url was given to clone", dest)
	}

	opts := &git.CloneOptions{URL: url}
	if branch, ok := properties["branch"].(string); ok && branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}
	if depth, ok := properties["depth"].(int); ok && depth > 0 {
		opts.Depth = depth
	}

	return git.PlainClone(dest, false, opts)
}

type factory struct{}

// Factory returns the registry.ConnectorFactory for the "sourcetree" connector.
func Factory() registry.ConnectorFactory { return factory{} }

func (factory) ComponentClass() registry.Metadata {
	return registry.Metadata{
		Name:          "sourcetree",
		OutputSchemas: []schema.Schema{OutputSchema},
	}
}

// CanCreate reports whether the artifact declares either an existing
// local path or a URL to clone from.
func (factory) CanCreate(properties map[string]any) bool {
	path, hasPath := properties["path"].(string)
	if !hasPath || path == "" {
		return false
	}
	if _, err := os.Stat(path); err == nil {
		return true
	}
	url, hasURL := properties["url"].(string)
	return hasURL && url != ""
}

func (factory) Create(map[string]any) (registry.Connector, error) {
	return &connector{}, nil
}
