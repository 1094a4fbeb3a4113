// Content browser (spec §4.H): refs, commits, tree, blob, blame, diff,
// archive, and README detection over a bare repo, grounded on the
// teacher's internal/server/api_content.go and api_refs.go (go-git usage,
// resolveRef, tree-walking, binary detection), adapted to the apierr
// envelope and AmbiguousRevision handling spec §4.H/§8 require.
package server

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/bantamhq/cutman/internal/apierr"
	"github.com/bantamhq/cutman/internal/store"
)

const maxBlobInlineBytes = 1 << 20

type refResponse struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	CommitSHA string `json:"commit_sha"`
	IsDefault bool   `json:"is_default"`
}

type gitAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Date  string `json:"date"`
}

type commitResponse struct {
	SHA        string    `json:"sha"`
	Message    string    `json:"message"`
	Author     gitAuthor `json:"author"`
	Committer  gitAuthor `json:"committer"`
	ParentSHAs []string  `json:"parent_shas"`
	TreeSHA    string    `json:"tree_sha"`
}

type treeEntryResponse struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	Mode string `json:"mode"`
	SHA  string `json:"sha"`
	Size *int64 `json:"size,omitempty"`
}

type blobResponse struct {
	SHA       string  `json:"sha"`
	Size      int64   `json:"size"`
	Content   *string `json:"content,omitempty"`
	Encoding  string  `json:"encoding"`
	IsBinary  bool    `json:"is_binary"`
	Truncated bool    `json:"truncated"`
}

type blameLineResponse struct {
	Line      int    `json:"line"`
	CommitSHA string `json:"commit_sha"`
}

type diffFileResponse struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
}

// requireRepoRead resolves (repo, namespace) from the {id} URL param and
// requires repo:read on it, per spec §4.H ("All operations require
// repo:read").
func (s *Server) requireRepoRead(w http.ResponseWriter, r *http.Request) (*store.Repo, *git.Repository, bool) {
	auth := mustAuth(w, r)
	if auth == nil {
		return nil, nil, false
	}

	repo, err := s.store.GetRepo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, translateStoreErr(err))
		return nil, nil, false
	}
	ns, err := s.store.GetNamespace(r.Context(), repo.NamespaceID)
	if err != nil {
		writeError(w, translateStoreErr(err))
		return nil, nil, false
	}
	if err := s.requireScope(r.Context(), auth, repoTarget(ns, repo), store.ScopeRepoRead); err != nil {
		writeError(w, err)
		return nil, nil, false
	}

	gitRepo, err := git.PlainOpen(s.repos.RepoPath(ns.ID, repo.ID))
	if err != nil {
		writeError(w, apierr.New(apierr.NotFound, "repository has no commits yet"))
		return nil, nil, false
	}

	return repo, gitRepo, true
}

// resolveRevision turns a ref name, full SHA, or unambiguous short SHA into
// a commit hash, per spec §4.H. Ambiguous short SHAs yield AmbiguousRevision.
func resolveRevision(repo *git.Repository, rev string) (plumbing.Hash, error) {
	if rev == "" {
		rev = "HEAD"
	}

	if len(rev) == 40 {
		hash := plumbing.NewHash(rev)
		if _, err := repo.CommitObject(hash); err == nil {
			return hash, nil
		}
	}

	if ref, err := repo.Reference(plumbing.NewBranchReferenceName(rev), true); err == nil {
		return ref.Hash(), nil
	}
	if ref, err := repo.Reference(plumbing.NewTagReferenceName(rev), true); err == nil {
		if tag, err := repo.TagObject(ref.Hash()); err == nil {
			return tag.Target, nil
		}
		return ref.Hash(), nil
	}
	if rev == "HEAD" {
		head, err := repo.Head()
		if err != nil {
			return plumbing.ZeroHash, apierr.New(apierr.NotFound, "repository is empty")
		}
		return head.Hash(), nil
	}

	if len(rev) >= 4 && len(rev) < 40 {
		return resolveShortSHA(repo, rev)
	}

	return plumbing.ZeroHash, apierr.Newf(apierr.NotFound, "reference not found: %s", rev)
}

func resolveShortSHA(repo *git.Repository, prefix string) (plumbing.Hash, error) {
	iter, err := repo.CommitObjects()
	if err != nil {
		return plumbing.ZeroHash, apierr.Newf(apierr.NotFound, "reference not found: %s", prefix)
	}
	defer iter.Close()

	var matches []plumbing.Hash
	err = iter.ForEach(func(c *object.Commit) error {
		if strings.HasPrefix(c.Hash.String(), prefix) {
			matches = append(matches, c.Hash)
		}
		return nil
	})
	if err != nil {
		return plumbing.ZeroHash, apierr.Newf(apierr.NotFound, "reference not found: %s", prefix)
	}

	switch len(matches) {
	case 0:
		return plumbing.ZeroHash, apierr.Newf(apierr.NotFound, "reference not found: %s", prefix)
	case 1:
		return matches[0], nil
	default:
		return plumbing.ZeroHash, apierr.New(apierr.AmbiguousRevision, "short SHA matches multiple commits")
	}
}

func toAuthor(sig object.Signature) gitAuthor {
	return gitAuthor{Name: sig.Name, Email: sig.Email, Date: sig.When.UTC().Format("2006-01-02T15:04:05Z")}
}

func toCommitResponse(c *object.Commit) commitResponse {
	parents := make([]string, 0, c.NumParents())
	c.Parents().ForEach(func(p *object.Commit) error {
		parents = append(parents, p.Hash.String())
		return nil
	})
	return commitResponse{
		SHA: c.Hash.String(), Message: c.Message,
		Author: toAuthor(c.Author), Committer: toAuthor(c.Committer),
		ParentSHAs: parents, TreeSHA: c.TreeHash.String(),
	}
}

func (s *Server) handleListRefs(w http.ResponseWriter, r *http.Request) {
	_, gitRepo, ok := s.requireRepoRead(w, r)
	if !ok {
		return
	}

	var refs []refResponse
	var defaultBranch string
	if head, err := gitRepo.Head(); err == nil {
		defaultBranch = head.Name().Short()
	}

	if iter, err := gitRepo.Branches(); err == nil {
		iter.ForEach(func(ref *plumbing.Reference) error {
			refs = append(refs, refResponse{Name: ref.Name().Short(), Type: "branch", CommitSHA: ref.Hash().String(), IsDefault: ref.Name().Short() == defaultBranch})
			return nil
		})
	}
	if iter, err := gitRepo.Tags(); err == nil {
		iter.ForEach(func(ref *plumbing.Reference) error {
			sha := ref.Hash().String()
			if tag, err := gitRepo.TagObject(ref.Hash()); err == nil {
				sha = tag.Target.String()
			}
			refs = append(refs, refResponse{Name: ref.Name().Short(), Type: "tag", CommitSHA: sha})
			return nil
		})
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].IsDefault != refs[j].IsDefault {
			return refs[i].IsDefault
		}
		return refs[i].Name < refs[j].Name
	})

	writeData(w, http.StatusOK, refs)
}

func (s *Server) handleListCommits(w http.ResponseWriter, r *http.Request) {
	_, gitRepo, ok := s.requireRepoRead(w, r)
	if !ok {
		return
	}

	hash, err := resolveRevision(gitRepo, r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err)
		return
	}

	page, perPage := parsePagination(r.URL.Query())

	iter, err := gitRepo.Log(&git.LogOptions{From: hash})
	if err != nil {
		writeError(w, apierr.Wrap(err, "walk commit history"))
		return
	}
	defer iter.Close()

	var all []commitResponse
	iter.ForEach(func(c *object.Commit) error {
		all = append(all, toCommitResponse(c))
		return nil
	})

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}

	writeList(w, all[start:end], page, perPage, len(all))
}

func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	_, gitRepo, ok := s.requireRepoRead(w, r)
	if !ok {
		return
	}

	hash, err := resolveRevision(gitRepo, chi.URLParam(r, "rev"))
	if err != nil {
		writeError(w, err)
		return
	}
	commit, err := gitRepo.CommitObject(hash)
	if err != nil {
		writeError(w, apierr.New(apierr.NotFound, "commit not found"))
		return
	}
	tree, err := commit.Tree()
	if err != nil {
		writeError(w, apierr.Wrap(err, "load tree"))
		return
	}

	path := strings.Trim(chi.URLParam(r, "*"), "/")
	if path != "" {
		tree, err = tree.Tree(path)
		if err != nil {
			writeError(w, apierr.Newf(apierr.NotFound, "path not found: %s", path))
			return
		}
	}

	entries := make([]treeEntryResponse, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entryPath := e.Name
		if path != "" {
			entryPath = path + "/" + e.Name
		}
		resp := treeEntryResponse{Name: e.Name, Path: entryPath, Mode: fmt.Sprintf("%06o", e.Mode), SHA: e.Hash.String()}
		switch {
		case e.Mode.IsFile():
			resp.Type = "file"
			if blob, err := gitRepo.BlobObject(e.Hash); err == nil {
				size := blob.Size
				resp.Size = &size
			}
		case e.Mode == 0o040000:
			resp.Type = "dir"
		case e.Mode == 0o120000:
			resp.Type = "symlink"
		case e.Mode == 0o160000:
			resp.Type = "submodule"
		default:
			resp.Type = "file"
		}
		entries = append(entries, resp)
	}

	sort.Slice(entries, func(i, j int) bool {
		if (entries[i].Type == "dir") != (entries[j].Type == "dir") {
			return entries[i].Type == "dir"
		}
		return entries[i].Name < entries[j].Name
	})

	writeData(w, http.StatusOK, entries)
}

func (s *Server) fileAtRevision(w http.ResponseWriter, r *http.Request, gitRepo *git.Repository) (*object.File, string, bool) {
	hash, err := resolveRevision(gitRepo, chi.URLParam(r, "rev"))
	if err != nil {
		writeError(w, err)
		return nil, "", false
	}
	commit, err := gitRepo.CommitObject(hash)
	if err != nil {
		writeError(w, apierr.New(apierr.NotFound, "commit not found"))
		return nil, "", false
	}
	tree, err := commit.Tree()
	if err != nil {
		writeError(w, apierr.Wrap(err, "load tree"))
		return nil, "", false
	}

	path := strings.Trim(chi.URLParam(r, "*"), "/")
	if path == "" {
		writeError(w, apierr.New(apierr.BadRequest, "path is required"))
		return nil, "", false
	}

	file, err := tree.File(path)
	if err != nil {
		writeError(w, apierr.Newf(apierr.NotFound, "path not found: %s", path))
		return nil, "", false
	}
	return file, path, true
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	_, gitRepo, ok := s.requireRepoRead(w, r)
	if !ok {
		return
	}

	file, path, ok := s.fileAtRevision(w, r, gitRepo)
	if !ok {
		return
	}

	reader, err := file.Blob.Reader()
	if err != nil {
		writeError(w, apierr.Wrap(err, "read blob"))
		return
	}
	defer reader.Close()

	readSize := file.Blob.Size
	truncated := false
	if readSize > maxBlobInlineBytes {
		readSize = maxBlobInlineBytes
		truncated = true
	}

	content := make([]byte, readSize)
	n, err := io.ReadFull(reader, content)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		writeError(w, apierr.Wrap(err, "read blob"))
		return
	}
	content = content[:n]

	if r.URL.Query().Get("raw") == "true" {
		w.Header().Set("Content-Type", detectContentType(path, content))
		w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename=%q`, path))
		w.Write(content)
		return
	}

	isBinary := isBinaryContent(content)
	resp := blobResponse{SHA: file.Blob.Hash.String(), Size: file.Blob.Size, IsBinary: isBinary, Truncated: truncated}
	if isBinary {
		encoded := base64.StdEncoding.EncodeToString(content)
		resp.Content, resp.Encoding = &encoded, "base64"
	} else {
		str := string(content)
		resp.Content, resp.Encoding = &str, "utf-8"
	}

	writeData(w, http.StatusOK, resp)
}

func isBinaryContent(content []byte) bool {
	if !utf8.Valid(content) {
		return true
	}
	for _, b := range content {
		if b == 0 {
			return true
		}
	}
	return false
}

func detectContentType(path string, content []byte) string {
	if n := len(content); n > 512 {
		content = content[:512]
	}
	return http.DetectContentType(content)
}

// handleGetBlame maps each line of the file at rev to the commit that last
// changed it, using go-git's Blame.
func (s *Server) handleGetBlame(w http.ResponseWriter, r *http.Request) {
	_, gitRepo, ok := s.requireRepoRead(w, r)
	if !ok {
		return
	}

	hash, err := resolveRevision(gitRepo, chi.URLParam(r, "rev"))
	if err != nil {
		writeError(w, err)
		return
	}
	path := strings.Trim(chi.URLParam(r, "*"), "/")

	commit, err := gitRepo.CommitObject(hash)
	if err != nil {
		writeError(w, apierr.New(apierr.NotFound, "commit not found"))
		return
	}

	blame, err := git.Blame(commit, path)
	if err != nil {
		writeError(w, apierr.Newf(apierr.NotFound, "path not found: %s", path))
		return
	}

	lines := make([]blameLineResponse, 0, len(blame.Lines))
	for i, l := range blame.Lines {
		lines = append(lines, blameLineResponse{Line: i + 1, CommitSHA: l.Hash.String()})
	}

	writeData(w, http.StatusOK, lines)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	_, gitRepo, ok := s.requireRepoRead(w, r)
	if !ok {
		return
	}

	baseHash, err := resolveRevision(gitRepo, chi.URLParam(r, "base"))
	if err != nil {
		writeError(w, err)
		return
	}
	headHash, err := resolveRevision(gitRepo, chi.URLParam(r, "head"))
	if err != nil {
		writeError(w, err)
		return
	}

	baseCommit, err := gitRepo.CommitObject(baseHash)
	if err != nil {
		writeError(w, apierr.New(apierr.NotFound, "base commit not found"))
		return
	}
	headCommit, err := gitRepo.CommitObject(headHash)
	if err != nil {
		writeError(w, apierr.New(apierr.NotFound, "head commit not found"))
		return
	}

	baseTree, err := baseCommit.Tree()
	if err != nil {
		writeError(w, apierr.Wrap(err, "load base tree"))
		return
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		writeError(w, apierr.Wrap(err, "load head tree"))
		return
	}

	changes, err := object.DiffTree(baseTree, headTree)
	if err != nil {
		writeError(w, apierr.Wrap(err, "diff trees"))
		return
	}

	files := make([]diffFileResponse, 0, len(changes))
	for _, change := range changes {
		patch, err := change.Patch()
		if err != nil {
			continue
		}
		var additions, deletions int
		for _, st := range patch.Stats() {
			additions += st.Addition
			deletions += st.Deletion
		}
		_, to, err := change.Files()
		path := ""
		if err == nil && to != nil {
			path = to.Name
		} else if from, _, ferr := change.Files(); ferr == nil && from != nil {
			path = from.Name
		}
		files = append(files, diffFileResponse{Path: path, Additions: additions, Deletions: deletions, Patch: patch.String()})
	}

	writeData(w, http.StatusOK, files)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	_, gitRepo, ok := s.requireRepoRead(w, r)
	if !ok {
		return
	}

	hash, err := resolveRevision(gitRepo, chi.URLParam(r, "rev"))
	if err != nil {
		writeError(w, err)
		return
	}
	commit, err := gitRepo.CommitObject(hash)
	if err != nil {
		writeError(w, apierr.New(apierr.NotFound, "commit not found"))
		return
	}
	tree, err := commit.Tree()
	if err != nil {
		writeError(w, apierr.Wrap(err, "load tree"))
		return
	}

	format := r.URL.Query().Get("format")
	if format == "zip" {
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="archive.zip"`)
		writeZipArchive(w, tree)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="archive.tar.gz"`)
	writeTarArchive(w, tree)
}

func writeTarArchive(w http.ResponseWriter, tree *object.Tree) {
	gz := gzip.NewWriter(w)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	tree.Files().ForEach(func(f *object.File) error {
		reader, err := f.Blob.Reader()
		if err != nil {
			return nil
		}
		defer reader.Close()

		tw.WriteHeader(&tar.Header{Name: f.Name, Mode: int64(f.Mode), Size: f.Blob.Size})
		io.Copy(tw, reader)
		return nil
	})
}

func writeZipArchive(w http.ResponseWriter, tree *object.Tree) {
	zw := zip.NewWriter(w)
	defer zw.Close()

	tree.Files().ForEach(func(f *object.File) error {
		reader, err := f.Blob.Reader()
		if err != nil {
			return nil
		}
		defer reader.Close()

		entry, err := zw.Create(f.Name)
		if err != nil {
			return nil
		}
		io.Copy(entry, reader)
		return nil
	})
}

var readmePattern = regexp.MustCompile(`(?i)^readme(\.(md|markdown|rst|txt))?$`)

func (s *Server) handleReadme(w http.ResponseWriter, r *http.Request) {
	_, gitRepo, ok := s.requireRepoRead(w, r)
	if !ok {
		return
	}

	head, err := gitRepo.Head()
	if err != nil {
		writeError(w, apierr.New(apierr.NotFound, "repository is empty"))
		return
	}
	commit, err := gitRepo.CommitObject(head.Hash())
	if err != nil {
		writeError(w, apierr.New(apierr.NotFound, "commit not found"))
		return
	}
	tree, err := commit.Tree()
	if err != nil {
		writeError(w, apierr.Wrap(err, "load tree"))
		return
	}

	var best *object.TreeEntry
	for i, e := range tree.Entries {
		if e.Mode.IsFile() && readmePattern.MatchString(e.Name) {
			if best == nil || preferredReadme(e.Name, best.Name) {
				best = &tree.Entries[i]
			}
		}
	}
	if best == nil {
		writeError(w, apierr.New(apierr.NotFound, "no readme found"))
		return
	}

	file, err := tree.File(best.Name)
	if err != nil {
		writeError(w, apierr.Wrap(err, "open readme"))
		return
	}
	content, err := file.Contents()
	if err != nil {
		writeError(w, apierr.Wrap(err, "read readme"))
		return
	}

	writeData(w, http.StatusOK, blobResponse{SHA: file.Blob.Hash.String(), Size: file.Blob.Size, Content: &content, Encoding: "utf-8"})
}

// preferredReadme orders README.md > README.markdown > README.rst >
// README.txt > README, per spec §4.H.
func preferredReadme(candidate, current string) bool {
	rank := func(name string) int {
		lower := strings.ToLower(name)
		switch {
		case strings.HasSuffix(lower, ".md"):
			return 0
		case strings.HasSuffix(lower, ".markdown"):
			return 1
		case strings.HasSuffix(lower, ".rst"):
			return 2
		case strings.HasSuffix(lower, ".txt"):
			return 3
		default:
			return 4
		}
	}
	return rank(candidate) < rank(current)
}
