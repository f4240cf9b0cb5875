// Package revisions keeps an append-only edit history for long-form content
// (landing pages, newsletters) in per-item git repositories on disk.
package revisions

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"encoding/json"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Snapshot is the versioned content written to each commit.
type Snapshot struct {
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	Summary  string `json:"summary"`
	BodyHTML string `json:"bodyHtml"`
}

// CommitInfo describes one entry in an item's history.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureRepo initializes the history repo for an item if it does not exist,
// committing initial as the baseline.
func (s *Service) EnsureRepo(kind, id string, initial Snapshot, author string) error {
	lock := s.itemLock(kind, id)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(kind, id)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal initial content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "content.json"), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write initial content: %w", err)
	}
	if _, err := worktree.Add("content.json"); err != nil {
		return fmt.Errorf("git add initial content: %w", err)
	}
	hash, err := worktree.Commit("Import baseline", &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return fmt.Errorf("commit initial content: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// Commit records a new snapshot on main and returns its commit info.
func (s *Service) Commit(kind, id string, content Snapshot, author, message string) (CommitInfo, error) {
	lock := s.itemLock(kind, id)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(kind, id))
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal content: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, "content.json"), append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write content.json: %w", err)
	}

	if _, err := worktree.Add("content.json"); err != nil {
		return CommitInfo{}, fmt.Errorf("git add content: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit content: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// Head returns the latest snapshot and its commit info.
func (s *Service) Head(kind, id string) (Snapshot, CommitInfo, error) {
	lock := s.itemLock(kind, id)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(kind, id))
	if err != nil {
		return Snapshot{}, CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return Snapshot{}, CommitInfo{}, fmt.Errorf("resolve main: %w", err)
	}

	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Snapshot{}, CommitInfo{}, fmt.Errorf("load commit object: %w", err)
	}

	content, err := readSnapshotFromCommit(commitObj)
	if err != nil {
		return Snapshot{}, CommitInfo{}, err
	}
	return content, toCommitInfo(commitObj), nil
}

// GetByHash returns the snapshot recorded at a specific commit. Short hashes
// are resolved the way git does.
func (s *Service) GetByHash(kind, id, hash string) (Snapshot, error) {
	lock := s.itemLock(kind, id)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(kind, id))
	if err != nil {
		return Snapshot{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readSnapshotFromCommit(commitObj)
}

// History lists commits newest first, up to limit (0 = unlimited).
func (s *Service) History(kind, id string, limit int) ([]CommitInfo, error) {
	lock := s.itemLock(kind, id)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(kind, id))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// DiffFields lists fields that differ between two snapshots.
func DiffFields(from, to Snapshot) []map[string]string {
	type pair struct {
		field  string
		before string
		after  string
	}
	pairs := []pair{
		{field: "title", before: from.Title, after: to.Title},
		{field: "slug", before: from.Slug, after: to.Slug},
		{field: "summary", before: from.Summary, after: to.Summary},
	}
	result := make([]map[string]string, 0)
	for _, item := range pairs {
		if item.before == item.after {
			continue
		}
		result = append(result, map[string]string{
			"field":  item.field,
			"before": item.before,
			"after":  item.after,
		})
	}
	if from.BodyHTML != to.BodyHTML {
		result = append(result, map[string]string{
			"field":  "bodyHtml",
			"before": "[rich content]",
			"after":  "[rich content]",
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i]["field"] < result[j]["field"]
	})
	return result
}

// HasChanges reports whether two snapshots differ.
func HasChanges(from, to Snapshot) bool {
	return from != to
}

func (s *Service) repoPath(kind, id string) string {
	return filepath.Join(s.baseDir, kind, id)
}

func (s *Service) itemLock(kind, id string) *sync.Mutex {
	key := kind + "/" + id
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[key]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[key] = lock
	return lock
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.masthead.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func readSnapshotFromCommit(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File("content.json")
	if err != nil {
		return Snapshot{}, fmt.Errorf("load content.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read content bytes: %w", err)
	}

	var content Snapshot
	if err := json.Unmarshal(raw, &content); err != nil {
		return Snapshot{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
