package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"repogauge/internal/models"
	"repogauge/pkg/cache"
	apperrors "repogauge/pkg/errors"
	"repogauge/pkg/logger"
)

const userAgent = "repogauge/1.0"

// languageCacheTTL bounds how long per-repo language maps are reused
// across runs.
const languageCacheTTL = 6 * time.Hour

// Config controls client construction.
type Config struct {
	Token string
	// RequestsPerSecond paces outgoing API calls. Zero disables pacing.
	RequestsPerSecond float64
	// PerPage is the page size for list endpoints.
	PerPage int
}

// Client wraps the GitHub REST API with request pacing, error
// classification and optional response caching.
type Client struct {
	gh      *gh.Client
	limiter *rate.Limiter
	cache   *cache.RedisCache
	perPage int
	log     *logger.Logger
}

// New creates an authenticated client when a token is configured,
// otherwise an anonymous one with the much lower unauthenticated quota.
func New(ctx context.Context, cfg Config, redisCache *cache.RedisCache, log *logger.Logger) *Client {
	var httpClient *http.Client
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(ctx, ts)
	} else {
		log.Warn().Msg("no API token configured, using unauthenticated quota")
	}

	client := gh.NewClient(httpClient)
	client.UserAgent = userAgent

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = 100
	}

	return &Client{
		gh:      client,
		limiter: limiter,
		cache:   redisCache,
		perPage: perPage,
		log:     log,
	}
}

// SetBaseURL points the client at an alternate API endpoint. Used for
// GitHub Enterprise installs and for tests.
func (c *Client) SetBaseURL(baseURL string) error {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	parsed, err := c.gh.BaseURL.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	c.gh.BaseURL = parsed
	return nil
}

func (c *Client) pace(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// classify maps raw API errors onto the error types the retry and
// budget layers understand.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return apperrors.NewRateLimitError("API rate limit exhausted", time.Until(rateErr.Rate.Reset.Time))
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return apperrors.NewRateLimitError("secondary rate limit triggered", abuseErr.GetRetryAfter())
	}
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		if respErr.Response.StatusCode >= 500 {
			return apperrors.Wrap(err, apperrors.ErrorTypeTransient, respErr.Message)
		}
	}
	return apperrors.NewNetworkError("API request failed", err)
}

// ListRepositories returns every repository owned by owner, following
// pagination. When owner is empty the authenticated user's repositories
// are listed instead, which also surfaces private ones.
func (c *Client) ListRepositories(ctx context.Context, owner string) ([]models.RepoMetadata, error) {
	var all []models.RepoMetadata

	if owner == "" {
		opt := &gh.RepositoryListByAuthenticatedUserOptions{
			Type:        "owner",
			ListOptions: gh.ListOptions{PerPage: c.perPage},
		}
		for {
			if err := c.pace(ctx); err != nil {
				return nil, err
			}
			repos, resp, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, opt)
			if err != nil {
				return nil, classify(err)
			}
			for _, repo := range repos {
				all = append(all, metadataFromRepo(repo))
			}
			if resp.NextPage == 0 {
				break
			}
			opt.Page = resp.NextPage
		}
		return all, nil
	}

	opt := &gh.RepositoryListByUserOptions{
		Type:        "owner",
		ListOptions: gh.ListOptions{PerPage: c.perPage},
	}
	for {
		if err := c.pace(ctx); err != nil {
			return nil, err
		}
		repos, resp, err := c.gh.Repositories.ListByUser(ctx, owner, opt)
		if err != nil {
			return nil, classify(err)
		}
		for _, repo := range repos {
			all = append(all, metadataFromRepo(repo))
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return all, nil
}

// RepoMetadata fetches full metadata for a single repository. The list
// endpoints omit subscriber counts, so per-repo lookups go through here.
func (c *Client) RepoMetadata(ctx context.Context, handle models.RepoHandle) (*models.RepoMetadata, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}
	repo, _, err := c.gh.Repositories.Get(ctx, handle.Owner, handle.Name)
	if err != nil {
		return nil, classify(err)
	}
	meta := metadataFromRepo(repo)
	return &meta, nil
}

// ListTree lists the entries of a directory within a repository. An
// empty path lists the repository root; a root listing of a repository
// with no content maps to models.ErrEmptyRepository.
func (c *Client) ListTree(ctx context.Context, handle models.RepoHandle, path string) ([]models.TreeEntry, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}
	opt := &gh.RepositoryContentGetOptions{Ref: handle.DefaultBranch}
	file, dir, resp, err := c.gh.Repositories.GetContents(ctx, handle.Owner, handle.Name, path, opt)
	if err != nil {
		if path == "" && resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, models.ErrEmptyRepository
		}
		return nil, classify(err)
	}
	if file != nil {
		// Path pointed at a file, not a directory.
		return []models.TreeEntry{treeEntryFromContent(file)}, nil
	}
	entries := make([]models.TreeEntry, 0, len(dir))
	for _, item := range dir {
		entries = append(entries, treeEntryFromContent(item))
	}
	return entries, nil
}

// FileContent fetches and decodes a single file's content.
func (c *Client) FileContent(ctx context.Context, handle models.RepoHandle, path string) ([]byte, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}
	opt := &gh.RepositoryContentGetOptions{Ref: handle.DefaultBranch}
	file, _, _, err := c.gh.Repositories.GetContents(ctx, handle.Owner, handle.Name, path, opt)
	if err != nil {
		return nil, classify(err)
	}
	if file == nil {
		return nil, apperrors.NewDecodeError(fmt.Sprintf("%s is not a file", path))
	}
	content, err := file.GetContent()
	if err != nil {
		// Some encodings come back raw; fall back to decoding ourselves.
		if file.Content != nil {
			if raw, decErr := base64.StdEncoding.DecodeString(*file.Content); decErr == nil {
				return raw, nil
			}
		}
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDecode, fmt.Sprintf("decoding %s", path))
	}
	return []byte(content), nil
}

// CommitHistory fetches commit timestamps for the past year and derives
// the activity summary. Repositories with no commits return a zero
// summary and no error.
func (c *Client) CommitHistory(ctx context.Context, handle models.RepoHandle) (models.CommitActivity, error) {
	var activity models.CommitActivity
	now := time.Now()
	cutoff30 := now.AddDate(0, 0, -30)

	opt := &gh.CommitsListOptions{
		Since:       now.AddDate(-1, 0, 0),
		ListOptions: gh.ListOptions{PerPage: c.perPage},
	}
	for {
		if err := c.pace(ctx); err != nil {
			return activity, err
		}
		commits, resp, err := c.gh.Repositories.ListCommits(ctx, handle.Owner, handle.Name, opt)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusConflict {
				// 409 means the repository has no commits yet.
				return activity, nil
			}
			return activity, classify(err)
		}
		for _, commit := range commits {
			ts := commit.GetCommit().GetCommitter().GetDate().Time
			if ts.After(activity.LastCommit) {
				activity.LastCommit = ts
			}
			activity.CommitsLastYr++
			if ts.After(cutoff30) {
				activity.CommitsLast30d++
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	if activity.LastCommit.IsZero() {
		// The windowed listing missed everything; ask for the single
		// newest commit so stale repositories still report a date.
		last, err := c.latestCommit(ctx, handle)
		if err != nil {
			return activity, err
		}
		activity.LastCommit = last
	}
	return activity, nil
}

func (c *Client) latestCommit(ctx context.Context, handle models.RepoHandle) (time.Time, error) {
	if err := c.pace(ctx); err != nil {
		return time.Time{}, err
	}
	opt := &gh.CommitsListOptions{ListOptions: gh.ListOptions{PerPage: 1}}
	commits, resp, err := c.gh.Repositories.ListCommits(ctx, handle.Owner, handle.Name, opt)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return time.Time{}, nil
		}
		return time.Time{}, classify(err)
	}
	if len(commits) == 0 {
		return time.Time{}, nil
	}
	return commits[0].GetCommit().GetCommitter().GetDate().Time, nil
}

// ContributorsCount counts distinct contributors by walking the
// paginated contributor listing.
func (c *Client) ContributorsCount(ctx context.Context, handle models.RepoHandle) (int, error) {
	opt := &gh.ListContributorsOptions{
		Anon:        "true",
		ListOptions: gh.ListOptions{PerPage: c.perPage},
	}
	count := 0
	for {
		if err := c.pace(ctx); err != nil {
			return count, err
		}
		contributors, resp, err := c.gh.Repositories.ListContributors(ctx, handle.Owner, handle.Name, opt)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusForbidden) {
				// 204 for empty repos; 403 for repos with too many
				// contributors to enumerate.
				return count, nil
			}
			return count, classify(err)
		}
		count += len(contributors)
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return count, nil
}

// OpenPullsCount returns the number of open pull requests.
func (c *Client) OpenPullsCount(ctx context.Context, handle models.RepoHandle) (int, error) {
	return c.searchCount(ctx, fmt.Sprintf("repo:%s is:pr is:open", handle.FullName))
}

// ClosedIssuesCount returns the number of closed issues, excluding
// pull requests.
func (c *Client) ClosedIssuesCount(ctx context.Context, handle models.RepoHandle) (int, error) {
	return c.searchCount(ctx, fmt.Sprintf("repo:%s is:issue is:closed", handle.FullName))
}

func (c *Client) searchCount(ctx context.Context, query string) (int, error) {
	if err := c.pace(ctx); err != nil {
		return 0, err
	}
	opt := &gh.SearchOptions{ListOptions: gh.ListOptions{PerPage: 1}}
	result, _, err := c.gh.Search.Issues(ctx, query, opt)
	if err != nil {
		return 0, classify(err)
	}
	return result.GetTotal(), nil
}

// LanguageBytes returns the byte-weighted language map reported by the
// remote. The map reflects repository bytes, not lines, so it is used
// as a presence signal only. Results are cached when a cache is wired.
func (c *Client) LanguageBytes(ctx context.Context, handle models.RepoHandle) (map[string]int, error) {
	cacheKey := "languages:" + handle.FullName
	if c.cache != nil {
		var cached map[string]int
		if err := c.cache.Get(cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	if err := c.pace(ctx); err != nil {
		return nil, err
	}
	languages, _, err := c.gh.Repositories.ListLanguages(ctx, handle.Owner, handle.Name)
	if err != nil {
		return nil, classify(err)
	}

	if c.cache != nil {
		if err := c.cache.Set(cacheKey, languages, languageCacheTTL); err != nil {
			c.log.WithError(err).Debug().Str("key", cacheKey).Msg("language cache write failed")
		}
	}
	return languages, nil
}

// RateStatus reports the remaining core API quota. The endpoint itself
// does not consume quota.
func (c *Client) RateStatus(ctx context.Context) (models.RateStatus, error) {
	limits, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return models.RateStatus{}, classify(err)
	}
	core := limits.GetCore()
	if core == nil {
		return models.RateStatus{}, apperrors.NewDecodeError("rate limit response missing core bucket")
	}
	return models.RateStatus{
		Remaining: core.Remaining,
		Limit:     core.Limit,
		ResetAt:   core.Reset.Time,
	}, nil
}

func metadataFromRepo(repo *gh.Repository) models.RepoMetadata {
	meta := models.RepoMetadata{
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		Description:   repo.GetDescription(),
		Homepage:      repo.GetHomepage(),
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
		Fork:          repo.GetFork(),
		Archived:      repo.GetArchived(),
		Template:      repo.GetIsTemplate(),
		Stars:         repo.GetStargazersCount(),
		Forks:         repo.GetForksCount(),
		Watchers:      repo.GetSubscribersCount(),
		OpenIssues:    repo.GetOpenIssuesCount(),
		HasWiki:       repo.GetHasWiki(),
		Topics:        repo.Topics,
		SizeKB:        repo.GetSize(),
		CreatedAt:     repo.GetCreatedAt().Time,
		PushedAt:      repo.GetPushedAt().Time,
	}
	if lic := repo.GetLicense(); lic != nil {
		meta.License = lic.GetSPDXID()
		if meta.License == "" {
			meta.License = lic.GetName()
		}
	}
	if meta.DefaultBranch == "" {
		meta.DefaultBranch = "main"
	}
	return meta
}

func treeEntryFromContent(content *gh.RepositoryContent) models.TreeEntry {
	entryType := content.GetType()
	if entryType != models.EntryTypeDir {
		entryType = models.EntryTypeFile
	}
	return models.TreeEntry{
		Path: content.GetPath(),
		Type: entryType,
		Size: content.GetSize(),
	}
}
