package gitops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/planexec/internal/config"
	"github.com/fyrsmithlabs/planexec/internal/logging"
)

const (
	shortHashLen   = 7
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

// Default commit identity when the repository config carries none.
const (
	defaultAuthorName  = "planexec"
	defaultAuthorEmail = "planexec@localhost"
)

// ErrHeadMoved reports that the repository's HEAD no longer matches the
// revision recorded at step start. Rollback refuses to run in that state:
// resetting files against an unexpected revision could destroy unrelated
// work, so manual intervention is required.
var ErrHeadMoved = errors.New("HEAD moved since step started; refusing automated rollback, manual cleanup required")

// Client is the version-control adapter. All mutating operations pass
// through one pacer and one retry loop; read-only queries go straight
// through.
type Client struct {
	repo       *git.Repository
	wt         *git.Worktree
	dir        string
	pacer      *pacer
	classifier Classifier
	maxRetries int
	log        *logging.Logger

	authorName  string
	authorEmail string
}

// Open opens the repository at dir. It fails when dir is not inside a git
// working tree.
func Open(dir string, cfg config.GitConfig, classifier Classifier, log *logging.Logger) (*Client, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%s is not a git working tree: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}
	if classifier == nil {
		classifier = NewClassifier()
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Client{
		repo:        repo,
		wt:          wt,
		dir:         dir,
		pacer:       newPacer(cfg.MinOpInterval, cfg.MaxOpsPerMinute),
		classifier:  classifier,
		maxRetries:  cfg.MaxRetries,
		log:         log.Named("gitops"),
		authorName:  defaultAuthorName,
		authorEmail: defaultAuthorEmail,
	}, nil
}

// SetAuthor overrides the commit identity.
func (c *Client) SetAuthor(name, email string) {
	c.authorName = name
	c.authorEmail = email
}

// Head returns the short revision id of HEAD, or "" for a repository with
// no commits yet.
func (c *Client) Head() (string, error) {
	head, err := c.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String()[:shortHashLen], nil
}

// IsDirty reports whether the working tree has uncommitted changes.
func (c *Client) IsDirty() (bool, error) {
	status, err := c.wt.Status()
	if err != nil {
		return false, fmt.Errorf("failed to read status: %w", err)
	}
	return !status.IsClean(), nil
}

// TrackedChanged returns tracked files with staged or unstaged
// modifications, sorted for deterministic staging.
func (c *Client) TrackedChanged() ([]string, error) {
	status, err := c.wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	var paths []string
	for path, st := range status {
		if st.Worktree == git.Untracked {
			continue
		}
		if st.Worktree != git.Unmodified || st.Staging != git.Unmodified {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// StagedPaths returns the files currently staged in the index.
func (c *Client) StagedPaths() ([]string, error) {
	status, err := c.wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	var paths []string
	for path, st := range status {
		if st.Staging != git.Unmodified && st.Staging != git.Untracked {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Stage stages the given paths, including deletions.
func (c *Client) Stage(ctx context.Context, paths []string) error {
	return c.do(ctx, "stage", func() error {
		for _, path := range paths {
			if _, err := c.wt.Add(path); err != nil {
				return fmt.Errorf("failed to stage %s: %w", path, err)
			}
		}
		return nil
	})
}

// Commit commits the staged changes and returns the short revision id.
// A clean index is a soft no-op: committed is false and err is nil.
func (c *Client) Commit(ctx context.Context, message string) (revision string, committed bool, err error) {
	err = c.do(ctx, "commit", func() error {
		hash, commitErr := c.wt.Commit(message, &git.CommitOptions{
			Author: &object.Signature{
				Name:  c.authorName,
				Email: c.authorEmail,
				When:  time.Now(),
			},
		})
		if commitErr != nil {
			return commitErr
		}
		revision = hash.String()[:shortHashLen]
		committed = true
		return nil
	})
	if err != nil && errors.Is(err, git.ErrEmptyCommit) {
		c.log.Debug("nothing to commit, treating as no-op")
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return revision, committed, nil
}

// Unstage resets the index to HEAD, leaving the working tree untouched.
func (c *Client) Unstage(ctx context.Context) error {
	return c.do(ctx, "unstage", func() error {
		if err := c.wt.Reset(&git.ResetOptions{Mode: git.MixedReset}); err != nil {
			return fmt.Errorf("failed to reset index: %w", err)
		}
		return nil
	})
}

// ExistsInHead reports whether path is tracked in the HEAD commit.
func (c *Client) ExistsInHead(path string) (bool, error) {
	tree, err := c.headTree()
	if err != nil {
		return false, err
	}
	if tree == nil {
		return false, nil
	}
	if _, err := tree.File(path); err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up %s in HEAD: %w", path, err)
	}
	return true, nil
}

// Rollback restores the working tree to the revision recorded at step start.
// It verifies HEAD still matches the anchor (loud failure otherwise),
// unstages everything, then partitions the step's files: tracked-in-HEAD
// files are restored from the last revision in one batch, newly created
// files are deleted in another.
func (c *Client) Rollback(ctx context.Context, anchor string, paths []string) error {
	head, err := c.Head()
	if err != nil {
		return err
	}
	if head != anchor {
		return fmt.Errorf("%w (expected %s, found %s)", ErrHeadMoved, anchor, head)
	}

	if err := c.Unstage(ctx); err != nil {
		return fmt.Errorf("rollback could not unstage: %w", err)
	}

	var restore, remove []string
	seen := map[string]bool{}
	for _, path := range paths {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		existed, err := c.ExistsInHead(path)
		if err != nil {
			return fmt.Errorf("rollback could not partition %s: %w", path, err)
		}
		if existed {
			restore = append(restore, path)
		} else {
			remove = append(remove, path)
		}
	}

	for _, path := range restore {
		if err := c.restoreFromHead(path); err != nil {
			return fmt.Errorf("rollback failed restoring %s: %w", path, err)
		}
	}
	for _, path := range remove {
		if err := os.Remove(filepath.Join(c.dir, path)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("rollback failed removing %s: %w", path, err)
		}
	}

	c.log.Info("rollback complete",
		zap.Int("restored", len(restore)),
		zap.Int("removed", len(remove)),
		zap.String("anchor", anchor))
	return nil
}

// restoreFromHead writes path's HEAD content back into the working tree.
func (c *Client) restoreFromHead(path string) error {
	tree, err := c.headTree()
	if err != nil {
		return err
	}
	if tree == nil {
		return fmt.Errorf("no HEAD commit to restore %s from", path)
	}
	f, err := tree.File(path)
	if err != nil {
		return fmt.Errorf("failed to read %s from HEAD: %w", path, err)
	}
	content, err := f.Contents()
	if err != nil {
		return fmt.Errorf("failed to read %s blob: %w", path, err)
	}
	target := filepath.Join(c.dir, path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, []byte(content), 0o644)
}

func (c *Client) headTree() (*object.Tree, error) {
	head, err := c.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	commit, err := c.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD tree: %w", err)
	}
	return tree, nil
}

// do paces, runs, and retries one mutating operation. Only retryable
// failures are retried, with exponential backoff up to the attempt ceiling;
// permanent and no-op failures propagate to the caller unchanged.
func (c *Client) do(ctx context.Context, op string, fn func() error) error {
	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.pacer.wait(ctx); err != nil {
			return fmt.Errorf("git %s canceled while throttled: %w", op, err)
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				c.log.Info("git operation recovered after retries",
					zap.String("op", op), zap.Int("attempts", attempt+1))
			}
			return nil
		}
		lastErr = err

		if c.classifier.Classify(err) != ClassRetryable {
			return err
		}
		if attempt == c.maxRetries {
			break
		}

		c.log.Warn("transient git failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.maxRetries+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("git %s canceled during backoff: %w", op, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return fmt.Errorf("git %s failed after %d attempts: %w", op, c.maxRetries+1, lastErr)
}
