package github

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/schaermu/workflowsync/internal/logging"
	"github.com/schaermu/workflowsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func newTestClient(t *testing.T, fake *testutil.FakeGitHub) (*Client, *sleepRecorder) {
	t.Helper()

	c, err := NewClient(context.Background(), Options{
		Token:   "ghp_0123456789abcdefghijklmnop",
		BaseURL: fake.URL(),
		Timeout: 5 * time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

func seedSource(fake *testutil.FakeGitHub) {
	fake.AddRepo(testutil.FakeRepo{
		Owner:  "acme",
		Name:   "api-gateway",
		Topics: []string{"microservice"},
		Files: map[string]string{
			".github/workflows/build.yml":    "name: build\n",
			".github/workflows/lint.yaml":    "name: lint\n",
			".github/workflows/README.md":    "docs\n",
			".github/CODEOWNERS":             "* @acme/platform\n",
			".github/workflows/nested/x.yml": "ignored\n",
		},
	})
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient(context.Background(), Options{Token: "x", BaseURL: "://bad"})
	assert.Error(t, err)
}

func TestGetRepository(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	fake.AddRepo(testutil.FakeRepo{Owner: "acme", Name: "readonly", ReadOnly: true, Archived: true})
	c, _ := newTestClient(t, fake)

	repo, err := c.GetRepository(context.Background(), "acme/api-gateway")
	require.NoError(t, err)
	assert.Equal(t, &Repository{
		Owner:         "acme",
		Name:          "api-gateway",
		FullName:      "acme/api-gateway",
		DefaultBranch: "main",
		CanPush:       true,
	}, repo)

	repo, err = c.GetRepository(context.Background(), "acme/readonly")
	require.NoError(t, err)
	assert.False(t, repo.CanPush)
	assert.True(t, repo.Archived)
}

func TestGetRepository_Errors(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.Fail(testutil.Failure{Method: http.MethodGet, Path: "/repos/acme/locked", Status: http.StatusUnauthorized, Message: "Bad credentials"})
	fake.Fail(testutil.Failure{Method: http.MethodGet, Path: "/repos/acme/forbidden", Status: http.StatusForbidden, Message: "Resource not accessible"})
	c, rec := newTestClient(t, fake)

	_, err := c.GetRepository(context.Background(), "acme/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetRepository(context.Background(), "acme/locked")
	assert.ErrorIs(t, err, ErrAuthentication)

	_, err = c.GetRepository(context.Background(), "acme/forbidden")
	var accessErr *AccessError
	require.ErrorAs(t, err, &accessErr)
	assert.Equal(t, http.StatusForbidden, accessErr.StatusCode)
	assert.Equal(t, "Resource not accessible", accessErr.Message)

	_, err = c.GetRepository(context.Background(), "no-slash")
	assert.Error(t, err)

	assert.Empty(t, rec.recorded(), "non-transient errors must not be retried")
}

func TestSearchByTopic(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	fake.AddRepo(testutil.FakeRepo{Owner: "acme", Name: "billing", Topics: []string{"microservice"}})
	fake.AddRepo(testutil.FakeRepo{Owner: "acme", Name: "legacy", Topics: []string{"microservice"}, Archived: true})
	fake.AddRepo(testutil.FakeRepo{Owner: "acme", Name: "vendored", Topics: []string{"microservice"}, ReadOnly: true})
	fake.AddRepo(testutil.FakeRepo{Owner: "acme", Name: "website", Topics: []string{"frontend"}})
	fake.AddRepo(testutil.FakeRepo{Owner: "other", Name: "billing", Topics: []string{"microservice"}})
	c, _ := newTestClient(t, fake)

	repos, err := c.SearchByTopic(context.Background(), "acme", "microservice")
	require.NoError(t, err)

	var names []string
	for _, r := range repos {
		names = append(names, r.FullName)
	}
	assert.Equal(t, []string{"acme/api-gateway", "acme/billing"}, names)
}

func TestSearchByTopic_FailureYieldsEmpty(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.Fail(testutil.Failure{Path: "/search/repositories", Status: http.StatusUnprocessableEntity, Message: "Validation Failed"})
	c, _ := newTestClient(t, fake)

	repos, err := c.SearchByTopic(context.Background(), "acme", "microservice")
	require.NoError(t, err)
	assert.NotNil(t, repos)
	assert.Empty(t, repos)
}

func TestListWorkflowFiles(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	c, _ := newTestClient(t, fake)

	repo, err := c.GetRepository(context.Background(), "acme/api-gateway")
	require.NoError(t, err)

	files, err := c.ListWorkflowFiles(context.Background(), repo, ".github/workflows")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"build.yml": "name: build\n",
		"lint.yaml": "name: lint\n",
	}, files)
}

func TestListWorkflowFiles_MissingDir(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.AddRepo(testutil.FakeRepo{Owner: "acme", Name: "bare", Files: map[string]string{"README.md": "hi"}})
	c, _ := newTestClient(t, fake)
	repo := &Repository{Owner: "acme", Name: "bare", FullName: "acme/bare", DefaultBranch: "main"}

	_, err := c.ListWorkflowFiles(context.Background(), repo, ".github/workflows")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "workflows path not found")

	entries, err := c.ListWorkflowEntries(context.Background(), repo, ".github/workflows")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListWorkflowEntries(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	c, _ := newTestClient(t, fake)
	repo := &Repository{Owner: "acme", Name: "api-gateway", FullName: "acme/api-gateway", DefaultBranch: "main"}

	entries, err := c.ListWorkflowEntries(context.Background(), repo, ".github/workflows")
	require.NoError(t, err)
	assert.Equal(t, []FileEntry{
		{Name: "build.yml", Path: ".github/workflows/build.yml", SHA: testutil.BlobSHA("name: build\n")},
		{Name: "lint.yaml", Path: ".github/workflows/lint.yaml", SHA: testutil.BlobSHA("name: lint\n")},
	}, entries)
}

func TestGetFileContent(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	c, _ := newTestClient(t, fake)
	repo := &Repository{Owner: "acme", Name: "api-gateway", FullName: "acme/api-gateway", DefaultBranch: "main"}

	file, err := c.GetFileContent(context.Background(), repo, ".github/workflows/build.yml")
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, "name: build\n", file.Content)
	assert.Equal(t, testutil.BlobSHA("name: build\n"), file.SHA)

	file, err = c.GetFileContent(context.Background(), repo, ".github/workflows/deploy.yml")
	require.NoError(t, err)
	assert.Nil(t, file)
}

func TestBranchAndPullRequestLifecycle(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	c, _ := newTestClient(t, fake)
	ctx := context.Background()
	repo := &Repository{Owner: "acme", Name: "api-gateway", FullName: "acme/api-gateway", DefaultBranch: "main"}

	head, err := c.BranchHead(ctx, repo, "main")
	require.NoError(t, err)
	require.NotEmpty(t, head)

	exists, err := c.BranchExists(ctx, repo, "sync/workflows-update-1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.CreateBranch(ctx, repo, "sync/workflows-update-1", head))

	exists, err = c.BranchExists(ctx, repo, "sync/workflows-update-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.WriteFile(ctx, repo, FileWrite{
		Path:    ".github/workflows/build.yml",
		Content: "name: build v2\n",
		Message: "chore: sync workflow build.yml",
		Branch:  "sync/workflows-update-1",
		SHA:     testutil.BlobSHA("name: build\n"),
	}))
	require.NoError(t, c.WriteFile(ctx, repo, FileWrite{
		Path:    ".github/workflows/deploy.yml",
		Content: "name: deploy\n",
		Message: "chore: add workflow deploy.yml",
		Branch:  "sync/workflows-update-1",
	}))
	require.NoError(t, c.DeleteFile(ctx, repo, FileDelete{
		Path:    ".github/workflows/lint.yaml",
		Message: "chore: remove workflow lint.yaml",
		Branch:  "sync/workflows-update-1",
		SHA:     testutil.BlobSHA("name: lint\n"),
	}))

	content, ok := fake.File("acme/api-gateway", "sync/workflows-update-1", ".github/workflows/build.yml")
	require.True(t, ok)
	assert.Equal(t, "name: build v2\n", content)
	_, ok = fake.File("acme/api-gateway", "sync/workflows-update-1", ".github/workflows/lint.yaml")
	assert.False(t, ok)
	content, _ = fake.File("acme/api-gateway", "main", ".github/workflows/build.yml")
	assert.Equal(t, "name: build\n", content, "default branch must be untouched")

	pr, err := c.OpenPullRequest(ctx, repo, NewPullRequest{
		Title: "chore: sync GitHub Actions workflows",
		Body:  "body",
		Head:  "sync/workflows-update-1",
		Base:  "main",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pr.Number)
	assert.Equal(t, "https://github.com/acme/api-gateway/pull/1", pr.URL)

	urls, err := c.ListOpenPRsWithBranchPrefix(ctx, repo, "sync/workflows-update")
	require.NoError(t, err)
	assert.Equal(t, []string{pr.URL}, urls)

	urls, err = c.ListOpenPRsWithBranchPrefix(ctx, repo, "renovate/")
	require.NoError(t, err)
	assert.Empty(t, urls)

	c.DeleteBranch(ctx, repo, "sync/workflows-update-1")
	assert.Equal(t, []string{"main"}, fake.Branches("acme/api-gateway"))
}

func TestWriteFile_StaleSHA(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	c, _ := newTestClient(t, fake)
	repo := &Repository{Owner: "acme", Name: "api-gateway", FullName: "acme/api-gateway", DefaultBranch: "main"}

	err := c.WriteFile(context.Background(), repo, FileWrite{
		Path:    ".github/workflows/build.yml",
		Content: "x",
		Message: "m",
		Branch:  "main",
		SHA:     "stale",
	})
	var accessErr *AccessError
	require.ErrorAs(t, err, &accessErr)
	assert.Equal(t, http.StatusConflict, accessErr.StatusCode)
}

func TestBranchHead_EmptyRepository(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.AddRepo(testutil.FakeRepo{Owner: "acme", Name: "fresh", Empty: true, DefaultBranch: "main"})
	c, _ := newTestClient(t, fake)
	repo := &Repository{Owner: "acme", Name: "fresh", FullName: "acme/fresh", DefaultBranch: "main"}

	_, err := c.BranchHead(context.Background(), repo, "main")
	assert.ErrorIs(t, err, ErrEmptyRepository)
}

func TestDeleteBranch_IgnoresFailures(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	c, _ := newTestClient(t, fake)
	repo := &Repository{Owner: "acme", Name: "api-gateway", FullName: "acme/api-gateway", DefaultBranch: "main"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// cancelled parent and missing branch: neither may panic or block
	c.DeleteBranch(ctx, repo, "does-not-exist")
	assert.Equal(t, 1, fake.CountRequests(http.MethodDelete, "/repos/acme/api-gateway/git/refs/heads/does-not-exist"))
}

func TestDeleteBranch_LogsRunContext(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	c, _ := newTestClient(t, fake)
	var buf bytes.Buffer
	c.logger = slog.New(logging.NewContextHandler(slog.NewJSONHandler(&buf, nil)))
	repo := &Repository{Owner: "acme", Name: "api-gateway", FullName: "acme/api-gateway", DefaultBranch: "main"}

	ctx := logging.WithRepo(logging.WithRunID(context.Background(), "run-7"), repo.FullName)
	c.DeleteBranch(ctx, repo, "does-not-exist")

	out := buf.String()
	assert.Contains(t, out, `"msg":"failed to delete branch"`)
	assert.Contains(t, out, `"run_id":"run-7"`)
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	fake.Fail(testutil.Failure{Method: http.MethodGet, Path: "/repos/acme/api-gateway", Status: http.StatusBadGateway, Times: 2})
	c, rec := newTestClient(t, fake)

	repo, err := c.GetRepository(context.Background(), "acme/api-gateway")
	require.NoError(t, err)
	assert.Equal(t, "acme/api-gateway", repo.FullName)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.recorded())
	assert.Equal(t, 3, fake.CountRequests(http.MethodGet, "/repos/acme/api-gateway"))
}

func TestRetry_Exhausted(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	fake.Fail(testutil.Failure{Method: http.MethodGet, Path: "/repos/acme/api-gateway", Status: http.StatusServiceUnavailable})
	c, rec := newTestClient(t, fake)

	_, err := c.GetRepository(context.Background(), "acme/api-gateway")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.Equal(t, 3, fake.CountRequests(http.MethodGet, "/repos/acme/api-gateway"))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.recorded())
}

func TestRetry_SecondaryRateLimit(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		wantWait time.Duration
	}{
		{name: "retry-after header", headers: map[string]string{"Retry-After": "0"}, wantWait: 0},
		{name: "no hint", wantWait: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeGitHub(t)
			seedSource(fake)
			fake.Fail(testutil.Failure{
				Method:           http.MethodGet,
				Path:             "/repos/acme/api-gateway",
				Status:           http.StatusForbidden,
				Message:          "You have exceeded a secondary rate limit",
				DocumentationURL: "https://docs.github.com/rest/overview/rate-limits-for-the-rest-api#about-secondary-rate-limits",
				Headers:          tt.headers,
				Times:            1,
			})
			c, rec := newTestClient(t, fake)

			_, err := c.GetRepository(context.Background(), "acme/api-gateway")
			require.NoError(t, err)
			assert.Equal(t, []time.Duration{tt.wantWait}, rec.recorded())
		})
	}
}

func TestRetry_CancelledContext(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	c, _ := newTestClient(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetRepository(ctx, "acme/api-gateway")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerOpens(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	fake.Fail(testutil.Failure{Path: "/repos/acme/*", Status: http.StatusBadGateway})
	c, _ := newTestClient(t, fake)
	ctx := context.Background()

	_, err := c.GetRepository(ctx, "acme/api-gateway")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)

	_, err = c.GetRepository(ctx, "acme/api-gateway")
	assert.ErrorIs(t, err, ErrCircuitOpen)

	_, err = c.GetRepository(ctx, "acme/billing")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 5, fake.CountRequests(http.MethodGet, "/repos/acme/"), "open breaker must not reach the API")
}

func TestMergePullRequest(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	seedSource(fake)
	fake.AddBranch("acme/api-gateway", "sync/workflows-update-1")
	fake.AddPR("acme/api-gateway", testutil.FakePR{Head: "sync/workflows-update-1", Base: "main"})
	c, rec := newTestClient(t, fake)
	repo := &Repository{Owner: "acme", Name: "api-gateway", FullName: "acme/api-gateway", DefaultBranch: "main"}

	merged, err := c.MergePullRequest(context.Background(), repo, 1, "squash")
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Empty(t, rec.recorded())

	prs := fake.PullRequests("acme/api-gateway")
	require.Len(t, prs, 1)
	assert.True(t, prs[0].Merged)
	assert.Equal(t, "squash", prs[0].MergeMethod)
}

func TestMergePullRequest_UpdatesBehindBranch(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.AddRepo(testutil.FakeRepo{Owner: "acme", Name: "billing", MergeBehind: 1, Files: map[string]string{"a": "b"}})
	fake.AddBranch("acme/billing", "sync/workflows-update-1")
	fake.AddPR("acme/billing", testutil.FakePR{Head: "sync/workflows-update-1", Base: "main"})
	c, rec := newTestClient(t, fake)
	repo := &Repository{Owner: "acme", Name: "billing", FullName: "acme/billing", DefaultBranch: "main"}

	merged, err := c.MergePullRequest(context.Background(), repo, 1, "merge")
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, 1, fake.CountRequests(http.MethodPut, "/repos/acme/billing/pulls/1/update-branch"))
	assert.Equal(t, 2, fake.CountRequests(http.MethodPut, "/repos/acme/billing/pulls/1/merge"))
	assert.Equal(t, []time.Duration{branchUpdateWait}, rec.recorded())
}

func TestMergePullRequest_NotMergeable(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.AddRepo(testutil.FakeRepo{Owner: "acme", Name: "billing", Unmergeable: true, Files: map[string]string{"a": "b"}})
	fake.AddBranch("acme/billing", "sync/workflows-update-1")
	fake.AddPR("acme/billing", testutil.FakePR{Head: "sync/workflows-update-1", Base: "main"})
	c, _ := newTestClient(t, fake)
	repo := &Repository{Owner: "acme", Name: "billing", FullName: "acme/billing", DefaultBranch: "main"}

	merged, err := c.MergePullRequest(context.Background(), repo, 1, "squash")
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Zero(t, fake.CountRequests(http.MethodPut, "/repos/acme/billing/pulls/1/merge"))
}

func TestRateBudget(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	reset := time.Unix(1_700_000_000, 0)
	fake.SetRate("core", testutil.Rate{Limit: 5000, Remaining: 4321, Reset: reset})
	fake.SetRate("search", testutil.Rate{Limit: 30, Remaining: 12, Reset: reset})
	c, _ := newTestClient(t, fake)

	core, err := c.RateBudget(context.Background(), CoreQuota)
	require.NoError(t, err)
	assert.Equal(t, 4321, core.Remaining)
	assert.Equal(t, 5000, core.Limit)
	assert.True(t, core.Reset.Equal(reset))

	search, err := c.RateBudget(context.Background(), SearchQuota)
	require.NoError(t, err)
	assert.Equal(t, 12, search.Remaining)

	_, err = c.RateBudget(context.Background(), Quota("graphql"))
	assert.Error(t, err)
}

func TestCheckRateLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name      string
		quota     Quota
		remaining int
		reset     time.Time
		wantWaits []time.Duration
	}{
		{name: "core above threshold", quota: CoreQuota, remaining: 50, reset: now.Add(time.Minute)},
		{name: "core below threshold", quota: CoreQuota, remaining: 49, reset: now.Add(time.Minute), wantWaits: []time.Duration{65 * time.Second}},
		{name: "wait is capped", quota: CoreQuota, remaining: 0, reset: now.Add(time.Hour), wantWaits: []time.Duration{300 * time.Second}},
		{name: "reset already passed", quota: CoreQuota, remaining: 0, reset: now.Add(-time.Minute)},
		{name: "search above threshold", quota: SearchQuota, remaining: 5, reset: now.Add(time.Minute)},
		{name: "search below threshold", quota: SearchQuota, remaining: 4, reset: now.Add(10 * time.Second), wantWaits: []time.Duration{15 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeGitHub(t)
			fake.SetRate(string(tt.quota), testutil.Rate{Limit: 5000, Remaining: tt.remaining, Reset: tt.reset})
			c, rec := newTestClient(t, fake)
			c.now = func() time.Time { return now }

			budget, err := c.CheckRateLimit(context.Background(), tt.quota)
			require.NoError(t, err)
			assert.Equal(t, tt.remaining, budget.Remaining)
			assert.Equal(t, tt.wantWaits, rec.recorded())
		})
	}
}

func TestCheckRateLimit_Failures(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.Fail(testutil.Failure{Path: "/rate_limit", Status: http.StatusUnauthorized, Message: "Bad credentials"})
	c, _ := newTestClient(t, fake)

	_, err := c.CheckRateLimit(context.Background(), CoreQuota)
	assert.ErrorIs(t, err, ErrAuthentication)

	fake2 := testutil.NewFakeGitHub(t)
	fake2.Fail(testutil.Failure{Path: "/rate_limit", Status: http.StatusForbidden, Message: "nope"})
	c2, _ := newTestClient(t, fake2)

	budget, err := c2.CheckRateLimit(context.Background(), CoreQuota)
	require.NoError(t, err, "unreadable budgets must not stop a run")
	assert.Zero(t, budget.Remaining)
}

func TestBudgetWaitUntilReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := Budget{Reset: now.Add(20 * time.Second)}
	assert.Equal(t, 25*time.Second, b.WaitUntilReset(now, 300*time.Second))
	assert.Equal(t, 10*time.Second, b.WaitUntilReset(now, 10*time.Second))
	assert.Zero(t, Budget{Reset: now.Add(-time.Minute)}.WaitUntilReset(now, time.Minute))
}

func TestIsBehindBase(t *testing.T) {
	for _, msg := range []string{
		"merge pull request: status 409: Head branch was modified. Review and try the merge again.",
		"status 405: Base branch is not up to date",
		"branch is out-of-date with the base branch",
	} {
		assert.True(t, isBehindBase(errString(msg)), msg)
	}
	assert.False(t, isBehindBase(errString("status 405: Pull Request is not mergeable")))
}

type errString string

func (e errString) Error() string { return string(e) }
