package testutil

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// FakeRepo seeds a repository on the fake API
type FakeRepo struct {
	Owner         string
	Name          string
	DefaultBranch string
	Archived      bool
	ReadOnly      bool
	Topics        []string
	// Empty repositories have no commits; ref lookups answer 409
	Empty bool
	// Files on the default branch, keyed by path
	Files map[string]string
	// Unmergeable PRs report mergeable=false
	Unmergeable bool
	// MergeBehind is how many merge attempts are rejected as out of date
	MergeBehind int
}

// Failure makes matching requests fail
type Failure struct {
	Method string
	// Path is matched exactly, or as a prefix when it ends in "*"
	Path    string
	Status  int
	Message string
	// Times limits how often the failure fires; 0 means always
	Times   int
	Headers map[string]string
	// DocumentationURL is echoed in the error body
	DocumentationURL string
}

// FakePR is a pull request recorded by the fake API
type FakePR struct {
	Number      int
	Title       string
	Body        string
	Head        string
	Base        string
	State       string
	Merged      bool
	MergeMethod string
}

// Rate is one rate-limit bucket served from /rate_limit
type Rate struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

type fakeBranch struct {
	head  string
	files map[string]string
}

type fakeRepoState struct {
	FakeRepo
	branches map[string]*fakeBranch
	pulls    []*FakePR
}

// FakeGitHub is an in-memory stand-in for the subset of the GitHub REST API
// workflowsync talks to
type FakeGitHub struct {
	Server *httptest.Server

	mu       sync.Mutex
	repos    map[string]*fakeRepoState
	failures []*Failure
	requests []string
	commits  int
	core     Rate
	search   Rate
}

// NewFakeGitHub starts a fake API server that is closed with the test
func NewFakeGitHub(t testing.TB) *FakeGitHub {
	t.Helper()

	f := &FakeGitHub{
		repos:  make(map[string]*fakeRepoState),
		core:   Rate{Limit: 5000, Remaining: 5000, Reset: time.Now().Add(time.Hour)},
		search: Rate{Limit: 30, Remaining: 30, Reset: time.Now().Add(time.Minute)},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /rate_limit", f.handleRateLimit)
	mux.HandleFunc("GET /search/repositories", f.handleSearch)
	mux.HandleFunc("GET /repos/{owner}/{repo}", f.handleGetRepo)
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/{path...}", f.handleGetContents)
	mux.HandleFunc("PUT /repos/{owner}/{repo}/contents/{path...}", f.handlePutContents)
	mux.HandleFunc("DELETE /repos/{owner}/{repo}/contents/{path...}", f.handleDeleteContents)
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/ref/{ref...}", f.handleGetRef)
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/refs", f.handleCreateRef)
	mux.HandleFunc("DELETE /repos/{owner}/{repo}/git/refs/{ref...}", f.handleDeleteRef)
	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls", f.handleListPulls)
	mux.HandleFunc("POST /repos/{owner}/{repo}/pulls", f.handleCreatePull)
	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls/{number}", f.handleGetPull)
	mux.HandleFunc("PUT /repos/{owner}/{repo}/pulls/{number}/merge", f.handleMergePull)
	mux.HandleFunc("PUT /repos/{owner}/{repo}/pulls/{number}/update-branch", f.handleUpdateBranch)

	f.Server = httptest.NewServer(f.intercept(mux))
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the API base URL to point a client at
func (f *FakeGitHub) URL() string {
	return f.Server.URL + "/"
}

// AddRepo seeds a repository
func (f *FakeGitHub) AddRepo(repo FakeRepo) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if repo.DefaultBranch == "" && !repo.Empty {
		repo.DefaultBranch = "main"
	}
	files := make(map[string]string, len(repo.Files))
	for p, c := range repo.Files {
		files[p] = c
	}

	state := &fakeRepoState{FakeRepo: repo, branches: make(map[string]*fakeBranch)}
	if !repo.Empty {
		state.branches[repo.DefaultBranch] = &fakeBranch{head: f.nextCommit(), files: files}
	}
	f.repos[repo.Owner+"/"+repo.Name] = state
}

// AddPR seeds an open pull request
func (f *FakeGitHub) AddPR(fullName string, pr FakePR) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo := f.repos[fullName]
	pr.Number = len(repo.pulls) + 1
	if pr.State == "" {
		pr.State = "open"
	}
	repo.pulls = append(repo.pulls, &pr)
}

// AddBranch seeds a branch forked from the default branch
func (f *FakeGitHub) AddBranch(fullName, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo := f.repos[fullName]
	base := repo.branches[repo.DefaultBranch]
	repo.branches[name] = &fakeBranch{head: f.nextCommit(), files: copyFiles(base.files)}
}

// Fail registers a failure injection
func (f *FakeGitHub) Fail(failure Failure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fc := failure
	f.failures = append(f.failures, &fc)
}

// SetRate sets the rate-limit bucket reported for "core" or "search"
func (f *FakeGitHub) SetRate(resource string, r Rate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if resource == "search" {
		f.search = r
		return
	}
	f.core = r
}

// Requests returns every request seen as "METHOD /path"
func (f *FakeGitHub) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// CountRequests counts requests with the given method whose path has prefix
func (f *FakeGitHub) CountRequests(method, prefix string) int {
	n := 0
	for _, r := range f.Requests() {
		m, p, _ := strings.Cut(r, " ")
		if m == method && strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

// File returns the content of path on branch
func (f *FakeGitHub) File(fullName, branch, filePath string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b := f.repos[fullName].branches[branch]
	if b == nil {
		return "", false
	}
	c, ok := b.files[filePath]
	return c, ok
}

// Branches lists the branch names of a repository
func (f *FakeGitHub) Branches(fullName string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var names []string
	for name := range f.repos[fullName].branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PullRequests returns copies of the pull requests of a repository
func (f *FakeGitHub) PullRequests(fullName string) []FakePR {
	f.mu.Lock()
	defer f.mu.Unlock()

	var prs []FakePR
	for _, pr := range f.repos[fullName].pulls {
		prs = append(prs, *pr)
	}
	return prs
}

// BlobSHA is the version token the fake API reports for content
func BlobSHA(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (f *FakeGitHub) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		failure := f.matchFailure(r)
		f.mu.Unlock()

		if failure != nil {
			for k, v := range failure.Headers {
				w.Header().Set(k, v)
			}
			writeJSON(w, failure.Status, map[string]string{
				"message":           failure.Message,
				"documentation_url": failure.DocumentationURL,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeGitHub) matchFailure(r *http.Request) *Failure {
	for _, fl := range f.failures {
		if fl.Method != "" && fl.Method != r.Method {
			continue
		}
		if prefix, ok := strings.CutSuffix(fl.Path, "*"); ok {
			if !strings.HasPrefix(r.URL.Path, prefix) {
				continue
			}
		} else if fl.Path != r.URL.Path {
			continue
		}
		if fl.Times < 0 {
			continue
		}
		if fl.Times > 0 {
			fl.Times--
			if fl.Times == 0 {
				fl.Times = -1
			}
		}
		return fl
	}
	return nil
}

func (f *FakeGitHub) nextCommit() string {
	f.commits++
	return fmt.Sprintf("%040d", f.commits)
}

func (f *FakeGitHub) repo(w http.ResponseWriter, r *http.Request) *fakeRepoState {
	repo := f.repos[r.PathValue("owner")+"/"+r.PathValue("repo")]
	if repo == nil {
		notFound(w)
	}
	return repo
}

func (f *FakeGitHub) handleRateLimit(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"resources": map[string]any{
			"core":   rateJSON(f.core),
			"search": rateJSON(f.search),
		},
	})
}

func (f *FakeGitHub) handleSearch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var org, topic string
	for _, term := range strings.Fields(r.URL.Query().Get("q")) {
		if v, ok := strings.CutPrefix(term, "org:"); ok {
			org = v
		}
		if v, ok := strings.CutPrefix(term, "topic:"); ok {
			topic = v
		}
	}

	var names []string
	for name, repo := range f.repos {
		if repo.Owner != org {
			continue
		}
		for _, t := range repo.Topics {
			if t == topic {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)

	items := make([]map[string]any, 0, len(names))
	for _, name := range names {
		items = append(items, repoJSON(f.repos[name]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_count":        len(items),
		"incomplete_results": false,
		"items":              items,
	})
}

func (f *FakeGitHub) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo := f.repo(w, r)
	if repo == nil {
		return
	}
	writeJSON(w, http.StatusOK, repoJSON(repo))
}

func (f *FakeGitHub) handleGetContents(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo := f.repo(w, r)
	if repo == nil {
		return
	}
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		ref = repo.DefaultBranch
	}
	branch := repo.branches[ref]
	if branch == nil {
		notFound(w)
		return
	}

	p := r.PathValue("path")
	if content, ok := branch.files[p]; ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"type":     "file",
			"name":     path.Base(p),
			"path":     p,
			"sha":      BlobSHA(content),
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
		return
	}

	var entries []map[string]any
	for fp, content := range branch.files {
		if path.Dir(fp) != p {
			continue
		}
		entries = append(entries, map[string]any{
			"type": "file",
			"name": path.Base(fp),
			"path": fp,
			"sha":  BlobSHA(content),
		})
	}
	if entries == nil {
		notFound(w)
		return
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i]["name"].(string) < entries[j]["name"].(string)
	})
	writeJSON(w, http.StatusOK, entries)
}

type contentRequest struct {
	Message string `json:"message"`
	Content []byte `json:"content"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

func (f *FakeGitHub) handlePutContents(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo := f.repo(w, r)
	if repo == nil {
		return
	}
	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	branch := repo.branches[req.Branch]
	if branch == nil {
		notFound(w)
		return
	}

	p := r.PathValue("path")
	existing, exists := branch.files[p]
	switch {
	case exists && req.SHA == "":
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Invalid request.\n\n\"sha\" wasn't supplied."})
		return
	case exists && req.SHA != BlobSHA(existing):
		writeJSON(w, http.StatusConflict, map[string]string{"message": p + " does not match " + req.SHA})
		return
	}

	content := string(req.Content)
	branch.files[p] = content
	branch.head = f.nextCommit()

	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"content": map[string]any{"name": path.Base(p), "path": p, "sha": BlobSHA(content)},
		"commit":  map[string]any{"sha": branch.head, "message": req.Message},
	})
}

func (f *FakeGitHub) handleDeleteContents(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo := f.repo(w, r)
	if repo == nil {
		return
	}
	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	branch := repo.branches[req.Branch]
	p := r.PathValue("path")
	if branch == nil {
		notFound(w)
		return
	}
	if _, ok := branch.files[p]; !ok {
		notFound(w)
		return
	}

	delete(branch.files, p)
	branch.head = f.nextCommit()
	writeJSON(w, http.StatusOK, map[string]any{
		"commit": map[string]any{"sha": branch.head, "message": req.Message},
	})
}

func (f *FakeGitHub) handleGetRef(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo := f.repo(w, r)
	if repo == nil {
		return
	}
	if repo.Empty {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Git Repository is empty."})
		return
	}

	name, ok := strings.CutPrefix(r.PathValue("ref"), "heads/")
	branch := repo.branches[name]
	if !ok || branch == nil {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, refJSON(name, branch))
}

func (f *FakeGitHub) handleCreateRef(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo := f.repo(w, r)
	if repo == nil {
		return
	}
	var req struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	name := strings.TrimPrefix(req.Ref, "refs/heads/")
	if _, exists := repo.branches[name]; exists {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Reference already exists"})
		return
	}

	var source *fakeBranch
	for _, b := range repo.branches {
		if b.head == req.SHA {
			source = b
			break
		}
	}
	if source == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Object does not exist"})
		return
	}

	branch := &fakeBranch{head: req.SHA, files: copyFiles(source.files)}
	repo.branches[name] = branch
	writeJSON(w, http.StatusCreated, refJSON(name, branch))
}

func (f *FakeGitHub) handleDeleteRef(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo := f.repo(w, r)
	if repo == nil {
		return
	}
	name := strings.TrimPrefix(r.PathValue("ref"), "heads/")
	if _, ok := repo.branches[name]; !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Reference does not exist"})
		return
	}
	delete(repo.branches, name)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeGitHub) handleListPulls(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo := f.repo(w, r)
	if repo == nil {
		return
	}
	state := r.URL.Query().Get("state")
	if state == "" {
		state = "open"
	}

	prs := make([]map[string]any, 0, len(repo.pulls))
	for _, pr := range repo.pulls {
		if state != "all" && pr.State != state {
			continue
		}
		prs = append(prs, f.pullJSON(repo, pr))
	}
	writeJSON(w, http.StatusOK, prs)
}

func (f *FakeGitHub) handleCreatePull(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo := f.repo(w, r)
	if repo == nil {
		return
	}
	var req struct {
		Title string `json:"title"`
		Head  string `json:"head"`
		Base  string `json:"base"`
		Body  string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	if repo.branches[req.Head] == nil || repo.branches[req.Base] == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Validation Failed"})
		return
	}

	pr := &FakePR{
		Number: len(repo.pulls) + 1,
		Title:  req.Title,
		Body:   req.Body,
		Head:   req.Head,
		Base:   req.Base,
		State:  "open",
	}
	repo.pulls = append(repo.pulls, pr)
	writeJSON(w, http.StatusCreated, f.pullJSON(repo, pr))
}

func (f *FakeGitHub) handleGetPull(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo, pr := f.pull(w, r)
	if pr == nil {
		return
	}
	writeJSON(w, http.StatusOK, f.pullJSON(repo, pr))
}

func (f *FakeGitHub) handleMergePull(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo, pr := f.pull(w, r)
	if pr == nil {
		return
	}
	var req struct {
		MergeMethod string `json:"merge_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	if repo.MergeBehind > 0 {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Head branch was modified. Review and try the merge again."})
		return
	}

	head := repo.branches[pr.Head]
	base := repo.branches[pr.Base]
	if head == nil || base == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Branch not found"})
		return
	}
	base.files = copyFiles(head.files)
	base.head = f.nextCommit()
	pr.State = "closed"
	pr.Merged = true
	pr.MergeMethod = req.MergeMethod

	writeJSON(w, http.StatusOK, map[string]any{
		"sha":     base.head,
		"merged":  true,
		"message": "Pull Request successfully merged",
	})
}

func (f *FakeGitHub) handleUpdateBranch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo, pr := f.pull(w, r)
	if pr == nil {
		return
	}
	if repo.MergeBehind > 0 {
		repo.MergeBehind--
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Updating pull request branch.",
	})
}

func (f *FakeGitHub) pull(w http.ResponseWriter, r *http.Request) (*fakeRepoState, *FakePR) {
	repo := f.repo(w, r)
	if repo == nil {
		return nil, nil
	}
	n, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || n < 1 || n > len(repo.pulls) {
		notFound(w)
		return nil, nil
	}
	return repo, repo.pulls[n-1]
}

func (f *FakeGitHub) pullJSON(repo *fakeRepoState, pr *FakePR) map[string]any {
	fullName := repo.Owner + "/" + repo.Name
	return map[string]any{
		"number":    pr.Number,
		"state":     pr.State,
		"title":     pr.Title,
		"body":      pr.Body,
		"merged":    pr.Merged,
		"mergeable": !repo.Unmergeable,
		"html_url":  fmt.Sprintf("https://github.com/%s/pull/%d", fullName, pr.Number),
		"head":      map[string]any{"ref": pr.Head},
		"base":      map[string]any{"ref": pr.Base},
	}
}

func repoJSON(repo *fakeRepoState) map[string]any {
	return map[string]any{
		"name":           repo.Name,
		"full_name":      repo.Owner + "/" + repo.Name,
		"owner":          map[string]any{"login": repo.Owner},
		"default_branch": repo.DefaultBranch,
		"archived":       repo.Archived,
		"topics":         repo.Topics,
		"permissions": map[string]bool{
			"admin": false,
			"push":  !repo.ReadOnly,
			"pull":  true,
		},
	}
}

func refJSON(name string, b *fakeBranch) map[string]any {
	return map[string]any{
		"ref":    "refs/heads/" + name,
		"object": map[string]any{"type": "commit", "sha": b.head},
	}
}

func rateJSON(r Rate) map[string]any {
	return map[string]any{
		"limit":     r.Limit,
		"remaining": r.Remaining,
		"reset":     r.Reset.Unix(),
	}
}

func copyFiles(files map[string]string) map[string]string {
	out := make(map[string]string, len(files))
	for k, v := range files {
		out[k] = v
	}
	return out
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"message":           "Not Found",
		"documentation_url": "https://docs.github.com/rest",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
