// Package githosttest provides an in-memory implementation of the subset of
// the Git hosting REST API used by the sync engine. Objects are content
// addressed with git's object hashing, trees are layered over base trees, and
// branch updates are rejected unless they fast-forward.
package githosttest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
)

// Call kinds, used by Calls and FailNext.
const (
	CreateRepo   = "create-repo"
	GetRepo      = "get-repo"
	GetRef       = "get-ref"
	CreateRef    = "create-ref"
	UpdateRef    = "update-ref"
	GetCommit    = "get-commit"
	CreateCommit = "create-commit"
	CreateBlob   = "create-blob"
	GetBlob      = "get-blob"
	CreateTree   = "create-tree"
	GetContents  = "get-contents"
)

const (
	// DefaultToken is the only credential the server accepts.
	DefaultToken = "test-token"

	// DefaultOwner is the login of the authenticated user.
	DefaultOwner = "octo"

	defaultBranch = "main"
)

// Commit is a stored commit object.
type Commit struct {
	Tree    string
	Parents []string
	Message string
}

type repo struct {
	owner, name   string
	description   string
	private       bool
	defaultBranch string

	blobs   map[string][]byte
	trees   map[string]map[string]string // path -> blob sha
	commits map[string]Commit
	refs    map[string]string // branch -> commit sha
}

type injected struct {
	status int
	left   int
}

// Server is a fake Git host. The zero value is not usable; call New.
type Server struct {
	URL   string
	Token string
	Owner string

	// ContentSizeLimit makes the contents API omit file content above this
	// many bytes, like the real API does for large files. 0 disables it.
	ContentSizeLimit int

	mu             sync.Mutex
	repos          map[string]*repo
	calls          map[string]int
	failures       map[string]*injected
	beforeRefWrite func()

	srv *httptest.Server
}

// New starts a fake host that is shut down when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		Token:    DefaultToken,
		Owner:    DefaultOwner,
		repos:    map[string]*repo{},
		calls:    map[string]int{},
		failures: map[string]*injected{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/repos", s.handle(CreateRepo, s.createRepo))
	mux.HandleFunc("GET /repos/{owner}/{repo}", s.handle(GetRepo, s.getRepo))
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/ref/heads/{branch...}", s.handle(GetRef, s.getRef))
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/refs/heads/{branch...}", s.handle(GetRef, s.getRef))
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/refs", s.handle(CreateRef, s.createRef))
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/git/refs/heads/{branch...}", s.handle(UpdateRef, s.updateRef))
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/commits/{sha}", s.handle(GetCommit, s.getCommit))
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/commits", s.handle(CreateCommit, s.createCommit))
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/blobs", s.handle(CreateBlob, s.createBlob))
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/blobs/{sha}", s.handle(GetBlob, s.getBlob))
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/trees", s.handle(CreateTree, s.createTree))
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/{path...}", s.handle(GetContents, s.getContents))

	s.srv = httptest.NewServer(mux)
	s.URL = s.srv.URL + "/"
	t.Cleanup(s.srv.Close)
	return s
}

// AddRepo creates an empty repository without any branch.
func (s *Server) AddRepo(owner, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addRepoLocked(owner, name)
}

func (s *Server) addRepoLocked(owner, name string) *repo {
	r := &repo{
		owner:         owner,
		name:          name,
		defaultBranch: defaultBranch,
		blobs:         map[string][]byte{},
		trees:         map[string]map[string]string{},
		commits:       map[string]Commit{},
		refs:          map[string]string{},
	}
	s.repos[owner+"/"+name] = r
	return r
}

// SetFiles commits files as the complete tree of branch, on top of the
// current head if there is one, and moves the branch to the new commit. It
// creates the repository if needed and returns the commit sha.
func (s *Server) SetFiles(owner, name, branch string, files map[string]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.repos[owner+"/"+name]
	if !ok {
		r = s.addRepoLocked(owner, name)
	}
	tree := map[string]string{}
	for path, content := range files {
		tree[path] = r.putBlob([]byte(content))
	}
	var parents []string
	if head, ok := r.refs[branch]; ok {
		parents = []string{head}
	}
	sha := r.putCommit(Commit{Tree: r.putTree(tree), Parents: parents, Message: "external change"})
	r.refs[branch] = sha
	return sha
}

// Files returns the content of every file on branch, or nil if the branch
// does not exist.
func (s *Server) Files(owner, name, branch string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.repos[owner+"/"+name]
	if !ok {
		return nil
	}
	head, ok := r.refs[branch]
	if !ok {
		return nil
	}
	out := map[string]string{}
	for path, blob := range r.trees[r.commits[head].Tree] {
		out[path] = string(r.blobs[blob])
	}
	return out
}

// Head returns the commit sha branch points at, or "".
func (s *Server) Head(owner, name, branch string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.repos[owner+"/"+name]; ok {
		return r.refs[branch]
	}
	return ""
}

// Commit returns a stored commit.
func (s *Server) Commit(owner, name, sha string) (Commit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.repos[owner+"/"+name]; ok {
		c, ok := r.commits[sha]
		return c, ok
	}
	return Commit{}, false
}

// TreeEntries returns path -> blob sha of a stored tree.
func (s *Server) TreeEntries(owner, name, treeSHA string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	if r, ok := s.repos[owner+"/"+name]; ok {
		for path, blob := range r.trees[treeSHA] {
			out[path] = blob
		}
	}
	return out
}

// Calls returns how many requests of kind were received.
func (s *Server) Calls(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

// FailNext makes the next n requests of kind fail with status.
func (s *Server) FailNext(kind string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[kind] = &injected{status: status, left: n}
}

// BeforeRefWrite registers fn to run before every ref create or update is
// processed. Tests use it to move the branch concurrently.
func (s *Server) BeforeRefWrite(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeRefWrite = fn
}

type handlerFunc func(w http.ResponseWriter, req *http.Request) (int, any)

func (s *Server) handle(kind string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer "+s.Token {
			writeJSON(w, http.StatusUnauthorized, message("Bad credentials"))
			return
		}

		s.mu.Lock()
		s.calls[kind]++
		if f, ok := s.failures[kind]; ok && f.left > 0 {
			f.left--
			s.mu.Unlock()
			writeJSON(w, f.status, message(http.StatusText(f.status)))
			return
		}
		hook := s.beforeRefWrite
		s.mu.Unlock()

		if hook != nil && (kind == CreateRef || kind == UpdateRef) {
			hook()
		}

		s.mu.Lock()
		status, body := h(w, req)
		s.mu.Unlock()

		if raw, ok := body.([]byte); ok {
			w.WriteHeader(status)
			w.Write(raw)
			return
		}
		writeJSON(w, status, body)
	}
}

func (s *Server) lookup(req *http.Request) (*repo, bool) {
	r, ok := s.repos[req.PathValue("owner")+"/"+req.PathValue("repo")]
	return r, ok
}

func (s *Server) createRepo(w http.ResponseWriter, req *http.Request) (int, any) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Private     bool   `json:"private"`
		AutoInit    bool   `json:"auto_init"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Name == "" {
		return http.StatusUnprocessableEntity, message("Repository creation failed.")
	}
	if _, ok := s.repos[s.Owner+"/"+body.Name]; ok {
		return http.StatusUnprocessableEntity, message("name already exists on this account")
	}

	r := s.addRepoLocked(s.Owner, body.Name)
	r.description = body.Description
	r.private = body.Private
	if body.AutoInit {
		tree := map[string]string{"README.md": r.putBlob([]byte("# " + body.Name + "\n"))}
		r.refs[r.defaultBranch] = r.putCommit(Commit{Tree: r.putTree(tree), Message: "Initial commit"})
	}
	return http.StatusCreated, s.repoJSON(r)
}

func (s *Server) getRepo(w http.ResponseWriter, req *http.Request) (int, any) {
	r, ok := s.lookup(req)
	if !ok {
		return http.StatusNotFound, message("Not Found")
	}
	return http.StatusOK, s.repoJSON(r)
}

func (s *Server) repoJSON(r *repo) map[string]any {
	return map[string]any{
		"name":           r.name,
		"full_name":      r.owner + "/" + r.name,
		"owner":          map[string]any{"login": r.owner},
		"private":        r.private,
		"description":    r.description,
		"default_branch": r.defaultBranch,
		"html_url":       strings.TrimSuffix(s.URL, "/") + "/" + r.owner + "/" + r.name,
	}
}

func (s *Server) getRef(w http.ResponseWriter, req *http.Request) (int, any) {
	r, ok := s.lookup(req)
	if !ok {
		return http.StatusNotFound, message("Not Found")
	}
	branch := req.PathValue("branch")
	sha, ok := r.refs[branch]
	if !ok {
		return http.StatusNotFound, message("Not Found")
	}
	return http.StatusOK, refJSON(branch, sha)
}

func (s *Server) createRef(w http.ResponseWriter, req *http.Request) (int, any) {
	r, ok := s.lookup(req)
	if !ok {
		return http.StatusNotFound, message("Not Found")
	}
	var body struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return http.StatusBadRequest, message("Problems parsing JSON")
	}
	branch, ok := strings.CutPrefix(body.Ref, "refs/heads/")
	if !ok || branch == "" {
		return http.StatusUnprocessableEntity, message("Reference name is invalid")
	}
	if _, ok := r.commits[body.SHA]; !ok {
		return http.StatusUnprocessableEntity, message("Object does not exist")
	}
	if _, exists := r.refs[branch]; exists {
		return http.StatusUnprocessableEntity, message("Reference already exists")
	}
	r.refs[branch] = body.SHA
	return http.StatusCreated, refJSON(branch, body.SHA)
}

func (s *Server) updateRef(w http.ResponseWriter, req *http.Request) (int, any) {
	r, ok := s.lookup(req)
	if !ok {
		return http.StatusNotFound, message("Not Found")
	}
	var body struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return http.StatusBadRequest, message("Problems parsing JSON")
	}
	branch := req.PathValue("branch")
	current, ok := r.refs[branch]
	if !ok {
		return http.StatusUnprocessableEntity, message("Reference does not exist")
	}
	if _, ok := r.commits[body.SHA]; !ok {
		return http.StatusUnprocessableEntity, message("Object does not exist")
	}
	if !body.Force && !r.isAncestor(current, body.SHA) {
		return http.StatusUnprocessableEntity, message("Update is not a fast forward")
	}
	r.refs[branch] = body.SHA
	return http.StatusOK, refJSON(branch, body.SHA)
}

func (s *Server) getCommit(w http.ResponseWriter, req *http.Request) (int, any) {
	r, ok := s.lookup(req)
	if !ok {
		return http.StatusNotFound, message("Not Found")
	}
	sha := req.PathValue("sha")
	c, ok := r.commits[sha]
	if !ok {
		return http.StatusNotFound, message("Not Found")
	}
	return http.StatusOK, commitJSON(sha, c)
}

func (s *Server) createCommit(w http.ResponseWriter, req *http.Request) (int, any) {
	r, ok := s.lookup(req)
	if !ok {
		return http.StatusNotFound, message("Not Found")
	}
	var body struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return http.StatusBadRequest, message("Problems parsing JSON")
	}
	if _, ok := r.trees[body.Tree]; !ok {
		return http.StatusUnprocessableEntity, message("Tree SHA does not exist")
	}
	for _, p := range body.Parents {
		if _, ok := r.commits[p]; !ok {
			return http.StatusUnprocessableEntity, message("Parent SHA does not exist or is not a commit object")
		}
	}
	c := Commit{Tree: body.Tree, Parents: body.Parents, Message: body.Message}
	sha := r.putCommit(c)
	return http.StatusCreated, commitJSON(sha, c)
}

func (s *Server) createBlob(w http.ResponseWriter, req *http.Request) (int, any) {
	r, ok := s.lookup(req)
	if !ok {
		return http.StatusNotFound, message("Not Found")
	}
	var body struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return http.StatusBadRequest, message("Problems parsing JSON")
	}
	data := []byte(body.Content)
	if body.Encoding == "base64" {
		var err error
		if data, err = base64.StdEncoding.DecodeString(body.Content); err != nil {
			return http.StatusUnprocessableEntity, message("Invalid base64 content")
		}
	}
	sha := r.putBlob(data)
	return http.StatusCreated, map[string]any{"sha": sha, "url": "blobs/" + sha}
}

func (s *Server) getBlob(w http.ResponseWriter, req *http.Request) (int, any) {
	r, ok := s.lookup(req)
	if !ok {
		return http.StatusNotFound, message("Not Found")
	}
	sha := req.PathValue("sha")
	data, ok := r.blobs[sha]
	if !ok {
		return http.StatusNotFound, message("Not Found")
	}
	if strings.Contains(req.Header.Get("Accept"), "raw") {
		return http.StatusOK, data
	}
	return http.StatusOK, map[string]any{
		"sha":      sha,
		"size":     len(data),
		"encoding": "base64",
		"content":  base64.StdEncoding.EncodeToString(data),
	}
}

func (s *Server) createTree(w http.ResponseWriter, req *http.Request) (int, any) {
	r, ok := s.lookup(req)
	if !ok {
		return http.StatusNotFound, message("Not Found")
	}
	var body struct {
		BaseTree string `json:"base_tree"`
		Tree     []struct {
			Path string  `json:"path"`
			Mode string  `json:"mode"`
			Type string  `json:"type"`
			SHA  *string `json:"sha"`
		} `json:"tree"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return http.StatusBadRequest, message("Problems parsing JSON")
	}

	files := map[string]string{}
	if body.BaseTree != "" {
		base, ok := r.trees[body.BaseTree]
		if !ok {
			return http.StatusUnprocessableEntity, message("base_tree is not a valid tree oid")
		}
		for path, blob := range base {
			files[path] = blob
		}
	}

	seen := map[string]bool{}
	for _, e := range body.Tree {
		if e.Path == "" || strings.HasPrefix(e.Path, "/") || strings.HasSuffix(e.Path, "/") {
			return http.StatusUnprocessableEntity, message("tree.path is invalid")
		}
		if e.Mode != "100644" || e.Type != "blob" {
			return http.StatusUnprocessableEntity, message("tree.mode or tree.type is invalid")
		}
		if seen[e.Path] {
			return http.StatusUnprocessableEntity, message("tree contains duplicate entry " + e.Path)
		}
		seen[e.Path] = true

		if e.SHA == nil {
			if _, ok := files[e.Path]; !ok {
				return http.StatusUnprocessableEntity, message("tree.sha null for a path not in base_tree")
			}
			delete(files, e.Path)
			continue
		}
		if _, ok := r.blobs[*e.SHA]; !ok {
			return http.StatusUnprocessableEntity, message("tree.sha " + *e.SHA + " is not a valid blob")
		}
		files[e.Path] = *e.SHA
	}

	sha := r.putTree(files)
	return http.StatusCreated, map[string]any{"sha": sha, "truncated": false}
}

func (s *Server) getContents(w http.ResponseWriter, req *http.Request) (int, any) {
	r, ok := s.lookup(req)
	if !ok {
		return http.StatusNotFound, message("Not Found")
	}
	branch := req.URL.Query().Get("ref")
	if branch == "" {
		branch = r.defaultBranch
	}
	head, ok := r.refs[branch]
	if !ok {
		// Like the real API, a commit sha works wherever a branch does.
		if _, isCommit := r.commits[branch]; !isCommit {
			return http.StatusNotFound, message("No commit found for the ref " + branch)
		}
		head = branch
	}
	files := r.trees[r.commits[head].Tree]
	path := strings.Trim(req.PathValue("path"), "/")

	if blob, ok := files[path]; ok {
		data := r.blobs[blob]
		file := map[string]any{
			"type":     "file",
			"name":     baseName(path),
			"path":     path,
			"sha":      blob,
			"size":     len(data),
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString(data),
		}
		if s.ContentSizeLimit > 0 && len(data) > s.ContentSizeLimit {
			file["encoding"] = "none"
			file["content"] = ""
		}
		return http.StatusOK, file
	}

	prefix := ""
	if path != "" {
		prefix = path + "/"
	}
	children := map[string]map[string]any{}
	for p, blob := range files {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		if dir, _, nested := strings.Cut(rest, "/"); nested {
			children[dir] = map[string]any{"type": "dir", "name": dir, "path": prefix + dir}
			continue
		}
		children[rest] = map[string]any{"type": "file", "name": rest, "path": p, "sha": blob, "size": len(r.blobs[blob])}
	}
	if len(children) == 0 {
		return http.StatusNotFound, message("Not Found")
	}

	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)
	listing := make([]map[string]any, 0, len(names))
	for _, name := range names {
		listing = append(listing, children[name])
	}
	return http.StatusOK, listing
}

func (r *repo) putBlob(data []byte) string {
	sha := plumbing.ComputeHash(plumbing.BlobObject, data).String()
	r.blobs[sha] = append([]byte(nil), data...)
	return sha
}

// putTree stores a flat path -> blob map. The id hashes the sorted listing,
// so equal file sets always get the same id.
func (r *repo) putTree(files map[string]string) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var listing strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&listing, "100644 blob %s\t%s\n", files[p], p)
	}
	sha := plumbing.ComputeHash(plumbing.TreeObject, []byte(listing.String())).String()
	r.trees[sha] = files
	return sha
}

func (r *repo) putCommit(c Commit) string {
	var raw strings.Builder
	fmt.Fprintf(&raw, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&raw, "parent %s\n", p)
	}
	fmt.Fprintf(&raw, "\n%s\n", c.Message)
	sha := plumbing.ComputeHash(plumbing.CommitObject, []byte(raw.String())).String()
	r.commits[sha] = c
	return sha
}

// isAncestor reports whether ancestor is reachable from sha.
func (r *repo) isAncestor(ancestor, sha string) bool {
	queue := []string{sha}
	seen := map[string]bool{}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == ancestor {
			return true
		}
		if seen[next] {
			continue
		}
		seen[next] = true
		queue = append(queue, r.commits[next].Parents...)
	}
	return false
}

func refJSON(branch, sha string) map[string]any {
	return map[string]any{
		"ref":    "refs/heads/" + branch,
		"object": map[string]any{"type": "commit", "sha": sha},
	}
}

func commitJSON(sha string, c Commit) map[string]any {
	parents := make([]map[string]any, 0, len(c.Parents))
	for _, p := range c.Parents {
		parents = append(parents, map[string]any{"sha": p})
	}
	return map[string]any{
		"sha":     sha,
		"message": c.Message,
		"tree":    map[string]any{"sha": c.Tree},
		"parents": parents,
	}
}

func message(msg string) map[string]any {
	return map[string]any{"message": msg}
}

func baseName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
