package docstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/errors"
)

// GitHub keeps the document as a single file in a GitHub repository using
// the contents API. The file's blob SHA is the revision.
type GitHub struct {
	apiURL string
	owner  string
	repo   string
	branch string
	path   string
	token  string
	client *http.Client
}

// GitHubOptions configures a GitHub store.
type GitHubOptions struct {
	APIURL  string
	Owner   string
	Repo    string
	Branch  string
	Path    string
	Token   string
	Timeout time.Duration
}

// NewGitHub creates a GitHub contents API store. No request is made until
// Read or Write.
func NewGitHub(opts GitHubOptions) *GitHub {
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GitHub{
		apiURL: strings.TrimRight(apiURL, "/"),
		owner:  opts.Owner,
		repo:   opts.Repo,
		branch: opts.Branch,
		path:   opts.Path,
		token:  opts.Token,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *GitHub) Name() string {
	return fmt.Sprintf("github:%s/%s/%s", g.owner, g.repo, g.path)
}

// Close is a no-op for the HTTP client
func (g *GitHub) Close() error {
	return nil
}

type contentsResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type contentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type writeResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

func (g *GitHub) contentsURL() (string, error) {
	u, err := url.Parse(g.apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid API URL: %w", err)
	}
	u.Path = path.Join(u.Path, "repos", g.owner, g.repo, "contents", g.path)
	return u.String(), nil
}

func (g *GitHub) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	if g.token == "" {
		return nil, errors.NewNotConfiguredError("store.github.token", "")
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Read implements Store.
func (g *GitHub) Read(ctx context.Context) (backlog.Document, error) {
	target, err := g.contentsURL()
	if err != nil {
		return backlog.Document{}, err
	}
	if g.branch != "" {
		target += "?ref=" + url.QueryEscape(g.branch)
	}

	req, err := g.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return backlog.Document{}, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return backlog.Document{}, errors.NewTransientError("read "+g.path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return backlog.Document{Records: []backlog.Record{}}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return backlog.Document{}, g.statusError("read", resp, "")
	}

	var body contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return backlog.Document{}, errors.NewTransientError("read "+g.path, fmt.Errorf("failed to decode response: %w", err))
	}

	content, err := decodeContent(body)
	if err != nil {
		return backlog.Document{}, err
	}
	records, err := backlog.DecodeRecords(content)
	if err != nil {
		return backlog.Document{}, err
	}
	return backlog.Document{Records: records, Revision: backlog.Revision(body.SHA)}, nil
}

func decodeContent(body contentsResponse) ([]byte, error) {
	if body.Encoding != "" && body.Encoding != "base64" {
		return nil, fmt.Errorf("unsupported content encoding %q", body.Encoding)
	}
	// GitHub wraps base64 content at 60 columns
	raw := strings.NewReplacer("\n", "", "\r", "").Replace(body.Content)
	content, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}
	return content, nil
}

// Write implements Store.
func (g *GitHub) Write(ctx context.Context, records []backlog.Record, rev backlog.Revision, label string) (backlog.Revision, error) {
	if err := checkLabel(label); err != nil {
		return "", err
	}
	content, err := backlog.EncodeRecords(records)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(contentsRequest{
		Message: label,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     string(rev),
		Branch:  g.branch,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON payload: %w", err)
	}

	target, err := g.contentsURL()
	if err != nil {
		return "", err
	}
	req, err := g.newRequest(ctx, http.MethodPut, target, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", errors.NewTransientError("write "+g.path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", g.statusError("write", resp, rev)
	}

	var body writeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.NewTransientError("write "+g.path, fmt.Errorf("failed to decode response: %w", err))
	}
	if body.Content.SHA == "" {
		return "", errors.NewTransientError("write "+g.path, stdErrors.New("response carried no revision"))
	}
	return backlog.Revision(body.Content.SHA), nil
}

// statusError maps a non-success response to the error taxonomy.
func (g *GitHub) statusError(op string, resp *http.Response, rev backlog.Revision) error {
	msg := readMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusPreconditionFailed:
		return errors.NewConflictError(g.path, string(rev), msg)
	case resp.StatusCode == http.StatusUnprocessableEntity && op == "write" && rev == "":
		// Creating without a sha fails this way when the file already exists
		return errors.NewConflictError(g.path, "", msg)
	case resp.StatusCode == http.StatusTooManyRequests, isRateLimitExhausted(resp):
		return errors.NewRateLimitErrorWithRetry("GitHub API rate limit exceeded", retryAfter(resp))
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("GitHub rejected credentials (%d %s): %w", resp.StatusCode, msg,
			errors.NewNotConfiguredError("store.github.token", "token is invalid or lacks contents permission"))
	case resp.StatusCode >= 500:
		return errors.NewTransientError(op+" "+g.path, fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	default:
		return fmt.Errorf("GitHub %s failed with status %d: %s", op, resp.StatusCode, msg)
	}
}

func readMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var errResp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Message != "" {
		return errResp.Message
	}
	return strings.TrimSpace(string(data))
}

func isRateLimitExhausted(resp *http.Response) bool {
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	if s := resp.Header.Get("X-RateLimit-Reset"); s != "" {
		if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}
