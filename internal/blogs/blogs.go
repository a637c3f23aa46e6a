// Package blogs stores posts across two backends: a metadata row in the
// relational store and a markdown content file on disk. The two stores
// cannot share a transaction, so writes are a saga with an explicit
// compensating action on partial failure.
package blogs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"blogapp/internal/logging"
	"blogapp/internal/storage"

	"github.com/yuin/goldmark"
)

var (
	// ErrNoPost reports a post that exists in neither store.
	ErrNoPost = errors.New("blogs: no such post")

	// ErrPartial reports that the row and the file disagree; the stores
	// need reconciliation and the failure must not read as success.
	ErrPartial = errors.New("blogs: post storage out of sync")

	// ErrBadTitle rejects titles that cannot form a safe file key.
	ErrBadTitle = errors.New("blogs: invalid title")
)

// Post is the metadata row for one blog post. Content lives in a file keyed
// by PostID.
type Post struct {
	UniqueID string
	Username string
	Title    string
	Tags     string
}

// PostID is the file key for a post.
func PostID(uniqueID, title string) string {
	return uniqueID + "_" + title
}

type Store struct {
	db    *storage.Store
	table string
	dir   string
	log   logging.Logger
	md    goldmark.Markdown
}

func NewStore(db *storage.Store, table, dir string, log logging.Logger) *Store {
	return &Store{
		db:    db,
		table: table,
		dir:   dir,
		log:   log.With("component", "blogs"),
		md:    goldmark.New(),
	}
}

// Init creates the blogs table and the content directory. The composite
// constraint keeps one title per author.
func (s *Store) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create blog dir: %w", err)
	}
	err := s.db.CreateTable(ctx, s.table, []string{
		"unique_id TEXT NOT NULL",
		"username TEXT NOT NULL",
		"title TEXT NOT NULL",
		"tags TEXT NOT NULL",
		"UNIQUE (unique_id, title)",
	})
	if errors.Is(err, storage.ErrTableExists) {
		return nil
	}
	return err
}

func (s *Store) path(uniqueID, title string) string {
	return filepath.Join(s.dir, PostID(uniqueID, title)+".md")
}

func checkTitle(title string) error {
	if title == "" || strings.ContainsAny(title, `/\`) || strings.Contains(title, "..") {
		return ErrBadTitle
	}
	return nil
}

// Exists reports whether the author already has a post with this title.
func (s *Store) Exists(ctx context.Context, uniqueID, title string) (bool, error) {
	rows, err := s.db.Select(ctx, s.table, []string{"title"},
		"unique_id = ? AND title = ?", uniqueID, title)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Create stores a new post. The content is staged in a temp file and moved
// to its final path only after the metadata row is in, so a failed or
// conflicting create never touches a file it did not write. Returns false
// when a post with this title already exists, leaving both stores untouched.
func (s *Store) Create(ctx context.Context, p Post, content []byte, overwrite bool) (bool, error) {
	if err := checkTitle(p.Title); err != nil {
		return false, err
	}

	// Row check up front: a title collision must never reach the existing
	// post's content file.
	exists, err := s.Exists(ctx, p.UniqueID, p.Title)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	path := s.path(p.UniqueID, p.Title)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	tmp, err := os.CreateTemp(s.dir, ".staged-*")
	if err != nil {
		return false, fmt.Errorf("write blog file: %w", err)
	}
	tmpPath := tmp.Name()
	_, werr := tmp.Write(content)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("write blog file: %w", errors.Join(werr, cerr))
	}

	err = s.db.Insert(ctx, s.table, map[string]any{
		"unique_id": p.UniqueID,
		"username":  p.Username,
		"title":     p.Title,
		"tags":      p.Tags,
	})
	if err != nil {
		os.Remove(tmpPath)
		if errors.Is(err, storage.ErrConstraint) {
			// Lost a race with a concurrent create of the same title;
			// only the staged file was discarded.
			return false, nil
		}
		return false, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		// A row without content must not survive.
		if _, delErr := s.db.Delete(ctx, s.table, "unique_id = ? AND title = ?", p.UniqueID, p.Title); delErr != nil {
			s.log.Error("orphan blog row left behind", "id", PostID(p.UniqueID, p.Title), "err", delErr)
			return false, fmt.Errorf("%w: content rename failed and row not removed: %v", ErrPartial, err)
		}
		return false, fmt.Errorf("place blog file: %w", err)
	}

	s.log.Info("blog post saved", "author", p.Username, "title", p.Title)
	return true, nil
}

// Delete removes the row and the file. Success requires both; when only one
// side was present the stores were already inconsistent, so the orphan is
// reconciled and ErrPartial surfaces instead of a silent success.
func (s *Store) Delete(ctx context.Context, uniqueID, title string) error {
	if err := checkTitle(title); err != nil {
		return err
	}
	path := s.path(uniqueID, title)

	n, err := s.db.Delete(ctx, s.table, "unique_id = ? AND title = ?", uniqueID, title)
	if err != nil {
		// File untouched; the stores are still consistent with each
		// other.
		return err
	}

	fileErr := os.Remove(path)
	switch {
	case n > 0 && fileErr == nil:
		s.log.Info("blog post deleted", "id", PostID(uniqueID, title))
		return nil
	case n == 0 && errors.Is(fileErr, fs.ErrNotExist):
		return ErrNoPost
	case n > 0 && errors.Is(fileErr, fs.ErrNotExist):
		s.log.Warn("blog row had no content file", "id", PostID(uniqueID, title))
		return fmt.Errorf("%w: row deleted, content file was missing", ErrPartial)
	case n == 0 && fileErr == nil:
		s.log.Warn("blog file had no metadata row", "id", PostID(uniqueID, title))
		return fmt.Errorf("%w: content file deleted, row was missing", ErrPartial)
	default:
		s.log.Error("blog file removal failed", "path", path, "err", fileErr)
		return fmt.Errorf("%w: %v", ErrPartial, fileErr)
	}
}

// Search returns posts whose title contains titleTerm and whose tags contain
// every given tag, as bound substring matches. Empty terms match everything.
func (s *Store) Search(ctx context.Context, titleTerm string, tags []string) ([]Post, error) {
	var clauses []string
	var args []any
	if titleTerm != "" {
		clauses = append(clauses, "title LIKE ?")
		args = append(args, "%"+titleTerm+"%")
	}
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		clauses = append(clauses, "tags LIKE ?")
		args = append(args, "%"+tag+"%")
	}

	rows, err := s.db.Select(ctx, s.table,
		[]string{"unique_id", "username", "title", "tags"},
		strings.Join(clauses, " AND "), args...)
	if err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

// ByAuthor returns every post of one account.
func (s *Store) ByAuthor(ctx context.Context, uniqueID string) ([]Post, error) {
	rows, err := s.db.Select(ctx, s.table,
		[]string{"unique_id", "username", "title", "tags"},
		"unique_id = ?", uniqueID)
	if err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

// PickRandom samples min(k, count) posts without replacement. Sampling is
// done application-side; ORDER BY RANDOM() is not portable across the
// supported drivers.
func (s *Store) PickRandom(ctx context.Context, k int) ([]Post, error) {
	if k <= 0 {
		return nil, nil
	}
	posts, err := s.Search(ctx, "", nil)
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(posts), func(i, j int) {
		posts[i], posts[j] = posts[j], posts[i]
	})
	if k < len(posts) {
		posts = posts[:k]
	}
	return posts, nil
}

// Raw returns the stored markdown of a post.
func (s *Store) Raw(uniqueID, title string) ([]byte, error) {
	if err := checkTitle(title); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(s.path(uniqueID, title))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoPost
	}
	if err != nil {
		return nil, fmt.Errorf("read blog file: %w", err)
	}
	return content, nil
}

// Render returns the post content converted from markdown to HTML.
func (s *Store) Render(uniqueID, title string) ([]byte, error) {
	content, err := s.Raw(uniqueID, title)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.md.Convert(content, &buf); err != nil {
		return nil, fmt.Errorf("render blog: %w", err)
	}
	return buf.Bytes(), nil
}

func fromRows(rows storage.Rows) []Post {
	posts := make([]Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, Post{
			UniqueID: r.String("unique_id"),
			Username: r.String("username"),
			Title:    r.String("title"),
			Tags:     r.String("tags"),
		})
	}
	return posts
}
