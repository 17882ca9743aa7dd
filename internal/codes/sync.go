package codes

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"alwaysattend/internal/logging"
)

// Mirror keeps a local checkout of the shared code database in step with its
// git remote. Sync failures degrade to whatever is already on disk.
type Mirror struct {
	Repo   string
	Branch string
	Dir    string
}

// Sync clones the remote if the directory holds no repository, otherwise
// fast-forwards the existing checkout. A directory with unrelated content is
// left untouched.
func (m *Mirror) Sync(ctx context.Context) error {
	if m.Repo == "" || m.Dir == "" {
		return nil
	}
	branch := m.Branch
	if branch == "" {
		branch = "main"
	}

	repo, err := git.PlainOpen(m.Dir)
	switch {
	case err == nil:
		return m.pull(ctx, repo, branch)
	case errors.Is(err, git.ErrRepositoryNotExists):
		if hasContent(m.Dir) {
			logging.CodesWarn("mirror dir %s is non-empty and not a repository, skipping sync", m.Dir)
			return nil
		}
		return m.clone(ctx, branch)
	default:
		return fmt.Errorf("open mirror %s: %w", m.Dir, err)
	}
}

func (m *Mirror) clone(ctx context.Context, branch string) error {
	logging.Codes("cloning code database %s (branch %s) into %s", m.Repo, branch, m.Dir)
	_, err := git.PlainCloneContext(ctx, m.Dir, false, &git.CloneOptions{
		URL:           m.Repo,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		return fmt.Errorf("clone %s: %w", m.Repo, err)
	}
	return nil
}

func (m *Mirror) pull(ctx context.Context, repo *git.Repository, branch string) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree %s: %w", m.Dir, err)
	}
	err = wt.PullContext(ctx, &git.PullOptions{
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pull %s: %w", m.Dir, err)
	}
	logging.Codes("code database %s fast-forwarded", m.Dir)
	return nil
}

func hasContent(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	return len(entries) > 0
}
