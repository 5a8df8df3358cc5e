// Package snapshot keeps a git history of the pages annotations were made
// on, so an annotation can be resolved against the version it was captured
// from as well as the current one.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const pageFile = "page.json"

var (
	ErrNoSnapshot     = errors.New("no snapshot for page")
	ErrUnknownVersion = errors.New("unknown snapshot version")
)

// Format names the markup a page body is stored in.
type Format string

const (
	FormatHTML        Format = "html"
	FormatMarkdown    Format = "markdown"
	FormatProseMirror Format = "prosemirror"
)

func (f Format) Valid() bool {
	switch f {
	case FormatHTML, FormatMarkdown, FormatProseMirror:
		return true
	}
	return false
}

type Page struct {
	URL    string `json:"url"`
	Format Format `json:"format"`
	Body   string `json:"body"`
}

type Version struct {
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

// Commit records page as the newest version of its URL. Committing an
// unchanged page returns the current head instead of an empty commit.
func (s *Service) Commit(page Page, author, message string) (Version, error) {
	if strings.TrimSpace(page.URL) == "" {
		return Version{}, fmt.Errorf("commit snapshot: empty url")
	}
	lock := s.pageLock(page.URL)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.ensureRepo(page.URL)
	if err != nil {
		return Version{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Version{}, fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(page, "", "  ")
	if err != nil {
		return Version{}, fmt.Errorf("marshal page: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), pageFile), append(payload, '\n'), 0o644); err != nil {
		return Version{}, fmt.Errorf("write %s: %w", pageFile, err)
	}
	if _, err := worktree.Add(pageFile); err != nil {
		return Version{}, fmt.Errorf("git add page: %w", err)
	}

	if message == "" {
		message = "Snapshot " + page.URL
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.lens.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		head, headErr := repo.Head()
		if headErr != nil {
			return Version{}, fmt.Errorf("resolve head: %w", headErr)
		}
		hash, err = head.Hash(), nil
	}
	if err != nil {
		return Version{}, fmt.Errorf("commit page: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Version{}, fmt.Errorf("read commit object: %w", err)
	}
	return toVersion(commitObj), nil
}

// Content returns the page stored at hash, or at head when hash is empty.
func (s *Service) Content(url, hash string) (Page, Version, error) {
	lock := s.pageLock(url)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openRepo(url)
	if err != nil {
		return Page{}, Version{}, err
	}

	var resolved plumbing.Hash
	if hash == "" {
		head, err := repo.Head()
		if err != nil {
			return Page{}, Version{}, fmt.Errorf("resolve head: %w", err)
		}
		resolved = head.Hash()
	} else if resolved, err = resolveHash(repo, hash); err != nil {
		return Page{}, Version{}, err
	}

	commitObj, err := repo.CommitObject(resolved)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return Page{}, Version{}, fmt.Errorf("%w: %s", ErrUnknownVersion, hash)
	}
	if err != nil {
		return Page{}, Version{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	page, err := readPageFromCommit(commitObj)
	if err != nil {
		return Page{}, Version{}, err
	}
	return page, toVersion(commitObj), nil
}

// History lists versions newest first; limit <= 0 means all.
func (s *Service) History(url string, limit int) ([]Version, error) {
	lock := s.pageLock(url)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openRepo(url)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Version, 0, max(limit, 0))
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toVersion(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (s *Service) repoPath(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(s.baseDir, hex.EncodeToString(sum[:12]))
}

func (s *Service) pageLock(url string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[url]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[url] = lock
	return lock
}

func (s *Service) openRepo(url string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(url))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%s: %w", url, ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) ensureRepo(url string) (*git.Repository, error) {
	path := s.repoPath(url)
	if _, err := os.Stat(path); err == nil {
		repo, err := git.PlainOpen(path)
		if err != nil {
			return nil, fmt.Errorf("open repo: %w", err)
		}
		return repo, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func readPageFromCommit(commitObj *object.Commit) (Page, error) {
	file, err := commitObj.File(pageFile)
	if err != nil {
		return Page{}, fmt.Errorf("load %s from commit: %w", pageFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Page{}, fmt.Errorf("open page reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Page{}, fmt.Errorf("read page bytes: %w", err)
	}

	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		return Page{}, fmt.Errorf("decode commit page: %w", err)
	}
	return page, nil
}

func toVersion(commitObj *object.Commit) Version {
	return Version{
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
		return "lens"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrUnknownVersion, hash)
	}
	return *resolved, nil
}
