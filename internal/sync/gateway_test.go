package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	gosync "sync"
	"time"

	"github.com/schaermu/workflowsync/internal/config"
	"github.com/schaermu/workflowsync/internal/github"
	"github.com/schaermu/workflowsync/internal/workflow"
)

const (
	testOrg    = "acme"
	testSource = "api-gateway"
)

// fakeGateway implements github.Gateway in memory for testing.
type fakeGateway struct {
	mu gosync.Mutex

	repos      map[string]*github.Repository
	repoErr    map[string]error
	candidates []github.Repository
	searchErr  error

	// files[repo][path] on the default branch
	files      map[string]map[string]github.FileContent
	listErr    error
	headErr    map[string]error
	openPRs    map[string][]string
	branches   map[string]bool
	writeErr   map[string]error
	prErr      error
	merged     bool
	mergeErr   error
	panicRepo  string
	budget     github.Budget
	budgetErr  error
	onWrite    func()
	onMerge    func()
	createErr  error
	rateErr    error
	contentErr error

	created      []string
	deleted      []string
	writes       []github.FileWrite
	removals     []github.FileDelete
	pulls        []github.NewPullRequest
	mergeCalls   []string
	rateChecks   []github.Quota
	resolveCalls []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		repos:    make(map[string]*github.Repository),
		repoErr:  make(map[string]error),
		files:    make(map[string]map[string]github.FileContent),
		headErr:  make(map[string]error),
		openPRs:  make(map[string][]string),
		branches: make(map[string]bool),
		writeErr: make(map[string]error),
		merged:   true,
		budget:   github.Budget{Quota: github.CoreQuota, Limit: 5000, Remaining: 5000},
	}
}

// addRepo registers a repository that is found by the topic search
func (f *fakeGateway) addRepo(repo github.Repository, workflows map[string]string) *github.Repository {
	if repo.Owner == "" {
		repo.Owner = testOrg
	}
	if repo.FullName == "" {
		repo.FullName = repo.Owner + "/" + repo.Name
	}
	if repo.DefaultBranch == "" {
		repo.DefaultBranch = "main"
	}
	repo.CanPush = true

	files := make(map[string]github.FileContent)
	for name, content := range workflows {
		files[workflow.Path(name)] = github.FileContent{Content: content, SHA: "sha-" + name}
	}

	r := repo
	f.repos[repo.FullName] = &r
	f.files[repo.FullName] = files
	f.candidates = append(f.candidates, repo)
	return &r
}

func (f *fakeGateway) GetRepository(_ context.Context, fullName string) (*github.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls = append(f.resolveCalls, fullName)

	if err := f.repoErr[fullName]; err != nil {
		return nil, err
	}
	repo, ok := f.repos[fullName]
	if !ok {
		return nil, fmt.Errorf("get repository %s: %w", fullName, github.ErrNotFound)
	}
	r := *repo
	return &r, nil
}

func (f *fakeGateway) SearchByTopic(_ context.Context, _, _ string) ([]github.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]github.Repository(nil), f.candidates...), f.searchErr
}

func (f *fakeGateway) GetFileContent(_ context.Context, repo *github.Repository, p string) (*github.FileContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if repo.FullName == f.panicRepo {
		panic("boom")
	}
	if f.contentErr != nil {
		return nil, f.contentErr
	}
	file, ok := f.files[repo.FullName][p]
	if !ok {
		return nil, nil
	}
	return &file, nil
}

func (f *fakeGateway) ListWorkflowFiles(_ context.Context, repo *github.Repository, dir string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make(map[string]string)
	for p, file := range f.files[repo.FullName] {
		if path.Dir(p) == dir {
			out[path.Base(p)] = file.Content
		}
	}
	return out, nil
}

func (f *fakeGateway) ListWorkflowEntries(_ context.Context, repo *github.Repository, dir string) ([]github.FileEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var entries []github.FileEntry
	for p, file := range f.files[repo.FullName] {
		if path.Dir(p) == dir {
			entries = append(entries, github.FileEntry{Name: path.Base(p), Path: p, SHA: file.SHA})
		}
	}
	return entries, nil
}

func (f *fakeGateway) BranchHead(_ context.Context, repo *github.Repository, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.headErr[repo.FullName]; err != nil {
		return "", err
	}
	return "head-" + repo.Name, nil
}

func (f *fakeGateway) CreateBranch(_ context.Context, repo *github.Repository, name, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, repo.FullName+":"+name)
	f.branches[repo.FullName+":"+name] = true
	return nil
}

func (f *fakeGateway) BranchExists(_ context.Context, repo *github.Repository, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branches[repo.FullName+":"+name], nil
}

func (f *fakeGateway) DeleteBranch(_ context.Context, repo *github.Repository, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, repo.FullName+":"+name)
	delete(f.branches, repo.FullName+":"+name)
}

func (f *fakeGateway) WriteFile(_ context.Context, _ *github.Repository, w github.FileWrite) error {
	f.mu.Lock()
	onWrite := f.onWrite
	err := f.writeErr[path.Base(w.Path)]
	if err == nil {
		f.writes = append(f.writes, w)
	}
	f.mu.Unlock()

	if onWrite != nil {
		onWrite()
	}
	return err
}

func (f *fakeGateway) DeleteFile(_ context.Context, _ *github.Repository, d github.FileDelete) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.writeErr[path.Base(d.Path)]; err != nil {
		return err
	}
	f.removals = append(f.removals, d)
	return nil
}

func (f *fakeGateway) OpenPullRequest(_ context.Context, repo *github.Repository, pr github.NewPullRequest) (*github.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.prErr != nil {
		return nil, f.prErr
	}
	f.pulls = append(f.pulls, pr)
	n := len(f.pulls)
	return &github.PullRequest{
		URL:    fmt.Sprintf("https://github.com/%s/pull/%d", repo.FullName, n),
		Number: n,
	}, nil
}

func (f *fakeGateway) ListOpenPRsWithBranchPrefix(_ context.Context, repo *github.Repository, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var urls []string
	for _, u := range f.openPRs[repo.FullName] {
		branch, url, _ := strings.Cut(u, " ")
		if strings.HasPrefix(branch, prefix) {
			urls = append(urls, url)
		}
	}
	return urls, nil
}

func (f *fakeGateway) MergePullRequest(_ context.Context, repo *github.Repository, number int, method string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mergeCalls = append(f.mergeCalls, fmt.Sprintf("%s#%d:%s", repo.FullName, number, method))
	if f.onMerge != nil {
		f.onMerge()
	}
	return f.merged, f.mergeErr
}

func (f *fakeGateway) CheckRateLimit(_ context.Context, quota github.Quota) (github.Budget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rateChecks = append(f.rateChecks, quota)
	return f.budget, f.rateErr
}

func (f *fakeGateway) RateBudget(_ context.Context, _ github.Quota) (github.Budget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.budget, f.budgetErr
}

// mutations counts calls that change remote state
func (f *fakeGateway) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created) + len(f.writes) + len(f.removals) + len(f.pulls) + len(f.mergeCalls)
}

type sleepRecorder struct {
	mu    gosync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return ctx.Err()
}

var testNow = time.Unix(1_700_000_000, 0)

func testConfig() *config.Config {
	cfg := &config.Config{
		Org:        testOrg,
		Topic:      "microservice",
		SourceRepo: testSource,
		Token:      "ghp_0123456789abcdefghijklmnop",
	}
	cfg.ApplyDefaults()
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(cfg *config.Config, gw *fakeGateway) (*Engine, *sleepRecorder) {
	rec := &sleepRecorder{}
	e := NewEngine(cfg, gw, testLogger())
	e.now = func() time.Time { return testNow }
	e.sleep = rec.sleep
	e.randSuffix = func() int { return 4242 }
	return e, rec
}
