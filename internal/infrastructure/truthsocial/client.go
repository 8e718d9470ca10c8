package truthsocial

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"ImpactWatcher/internal/config"
	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/infrastructure/httpretry"
	"ImpactWatcher/internal/ports"
)

const (
	defaultPageLimit = 40
	defaultMaxPages  = 10
	userAgent        = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// ErrUnauthorized is returned when the API rejects the bearer token.
var ErrUnauthorized = errors.New("truthsocial: unauthorized")

// Client pulls statuses of one account from a Mastodon-compatible API.
type Client struct {
	baseURL      string
	handle       string
	username     string
	password     string
	clientID     string
	clientSecret string
	pageLimit    int
	maxPages     int
	http         *httpretry.Executor
	logger       *slog.Logger

	token     string
	staticTok bool
	accountID string
}

var _ ports.PostSource = (*Client)(nil)

// NewClient wires credentials and paging limits from configuration.
func NewClient(cfg config.TruthSocialConfig, retry httpretry.Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := cfg.PageLimit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		handle:       strings.TrimPrefix(cfg.Handle, "@"),
		username:     cfg.Username,
		password:     cfg.Password,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		pageLimit:    limit,
		maxPages:     maxPages,
		http:         httpretry.New(&http.Client{Timeout: timeout}, retry),
		logger:       logger,
		token:        cfg.Token,
		staticTok:    cfg.Token != "",
	}
}

type apiStatus struct {
	ID          string  `json:"id"`
	CreatedAt   string  `json:"created_at"`
	Content     string  `json:"content"`
	URL         string  `json:"url"`
	InReplyToID *string `json:"in_reply_to_id"`
	Account     struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Acct     string `json:"acct"`
	} `json:"account"`
}

// FetchSince returns statuses newer than since in ascending identifier order.
// With an empty cursor only the most recent page is read. With a cursor, pages are
// read forward from it with min_id, so a pass cut short by the page cap returns the
// oldest pending statuses and the next pass resumes after them.
func (c *Client) FetchSince(ctx context.Context, since domain.Cursor) ([]domain.Post, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}
	if err := c.ensureAccount(ctx); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	posts := make([]domain.Post, 0)
	minID := since

	for page := 0; page < c.maxPages; page++ {
		statuses, err := c.statuses(ctx, minID)
		if err != nil {
			return nil, err
		}
		if len(statuses) == 0 {
			break
		}

		next := minID
		for _, st := range statuses {
			next = next.Advance(st.ID)
			if st.InReplyToID != nil && *st.InReplyToID != "" {
				continue
			}
			if _, ok := seen[st.ID]; ok {
				continue
			}
			seen[st.ID] = struct{}{}
			posts = append(posts, c.toPost(st))
		}

		if since.IsZero() || len(statuses) < c.pageLimit || next == minID {
			break
		}
		minID = next
		if page == c.maxPages-1 {
			c.logger.Warn("page limit reached, newer statuses deferred to next pass", "pages", c.maxPages, "read_up_to", minID.String())
		}
	}

	slices.SortStableFunc(posts, func(a, b domain.Post) int {
		return strings.Compare(a.ID, b.ID)
	})

	c.logger.Info("fetched statuses", "handle", c.handle, "since", since.String(), "count", len(posts))
	return posts, nil
}

func (c *Client) toPost(st apiStatus) domain.Post {
	author := st.Account.Username
	if author == "" {
		author = st.Account.Acct
	}
	if author == "" {
		author = c.handle
	}

	created, err := time.Parse(time.RFC3339Nano, st.CreatedAt)
	if err != nil {
		c.logger.Warn("unparseable created_at", "id", st.ID, "value", st.CreatedAt)
	}

	return domain.Post{
		ID:        st.ID,
		Content:   st.Content,
		Text:      PlainText(st.Content),
		Author:    author,
		URL:       st.URL,
		CreatedAt: created,
	}
}

func (c *Client) ensureToken(ctx context.Context) error {
	if c.token != "" {
		return nil
	}
	if c.username == "" || c.password == "" {
		return errors.New("truthsocial: no token and no credentials")
	}

	payload, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"grant_type":    "password",
		"username":      c.username,
		"password":      c.password,
		"redirect_uri":  "urn:ietf:wg:oauth:2.0:oob",
		"scope":         "read",
	})
	if err != nil {
		return fmt.Errorf("marshal login payload: %w", err)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	err = c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &out)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if out.AccessToken == "" {
		return errors.New("login: empty access token")
	}

	c.token = out.AccessToken
	c.logger.Info("logged in", "username", c.username)
	return nil
}

func (c *Client) ensureAccount(ctx context.Context) error {
	if c.accountID != "" {
		return nil
	}

	query := url.Values{"acct": {c.handle}}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.get(ctx, "/api/v1/accounts/lookup?"+query.Encode(), &out); err != nil {
		return fmt.Errorf("lookup @%s: %w", c.handle, err)
	}
	if out.ID == "" {
		return fmt.Errorf("lookup @%s: account not found", c.handle)
	}

	c.accountID = out.ID
	c.logger.Info("resolved account", "handle", c.handle, "account_id", out.ID)
	return nil
}

func (c *Client) statuses(ctx context.Context, minID domain.Cursor) ([]apiStatus, error) {
	query := url.Values{}
	query.Set("exclude_replies", "true")
	query.Set("limit", strconv.Itoa(c.pageLimit))
	if !minID.IsZero() {
		query.Set("min_id", string(minID))
	}

	var out []apiStatus
	path := fmt.Sprintf("/api/v1/accounts/%s/statuses?%s", url.PathEscape(c.accountID), query.Encode())
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("statuses of @%s: %w", c.handle, err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	return c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	}, v)
}

func (c *Client) do(ctx context.Context, build func(context.Context) (*http.Request, error), v any) error {
	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// a password-grant token may have expired; log in again next pass
		if !c.staticTok {
			c.token = ""
		}
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
