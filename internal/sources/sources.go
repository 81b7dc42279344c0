// Package sources fetches candidate posts from community listings.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxListingBytes = 8 << 20

// Post is a text post from a community listing. Identity is the platform ID.
type Post struct {
	ID        string
	Title     string
	Body      string
	Author    string
	Subreddit string
	Upvotes   int
	Comments  int
	Permalink string
}

// PostSource lists candidate posts for a community. Failures degrade to an
// empty list.
type PostSource interface {
	Fetch(ctx context.Context, community string) []Post
}

// Query selects which listing to read.
type Query struct {
	Sort       string
	TimeWindow string
	Limit      int
}

// RedditSource reads the public JSON listing endpoints.
type RedditSource struct {
	baseURL    string
	userAgent  string
	query      Query
	httpClient *http.Client
	logger     *slog.Logger
}

func NewRedditSource(baseURL, userAgent string, q Query, logger *slog.Logger) *RedditSource {
	return &RedditSource{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		query:     q,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data struct {
				ID          string `json:"id"`
				Title       string `json:"title"`
				Selftext    string `json:"selftext"`
				Author      string `json:"author"`
				Subreddit   string `json:"subreddit"`
				Ups         int    `json:"ups"`
				NumComments int    `json:"num_comments"`
				Permalink   string `json:"permalink"`
				Stickied    bool   `json:"stickied"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch returns the community's listing, skipping stickied posts.
func (r *RedditSource) Fetch(ctx context.Context, community string) []Post {
	posts, err := r.fetch(ctx, community)
	if err != nil {
		r.logger.Warn("fetch listing failed", "community", community, "error", err)
		return nil
	}
	r.logger.Info("listing fetched", "community", community, "posts", len(posts))
	return posts
}

func (r *RedditSource) listingURL(community string) string {
	q := url.Values{}
	if r.query.TimeWindow != "" {
		q.Set("t", r.query.TimeWindow)
	}
	if r.query.Limit > 0 {
		q.Set("limit", strconv.Itoa(r.query.Limit))
	}
	sort := r.query.Sort
	if sort == "" {
		sort = "top"
	}
	u := fmt.Sprintf("%s/r/%s/%s.json", r.baseURL, url.PathEscape(community), url.PathEscape(sort))
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func (r *RedditSource) fetch(ctx context.Context, community string) ([]Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.listingURL(community), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("listing HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var l listing
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxListingBytes)).Decode(&l); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	posts := make([]Post, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		d := child.Data
		if d.Stickied || d.ID == "" {
			continue
		}
		sub := d.Subreddit
		if sub == "" {
			sub = community
		}
		posts = append(posts, Post{
			ID:        d.ID,
			Title:     d.Title,
			Body:      d.Selftext,
			Author:    d.Author,
			Subreddit: sub,
			Upvotes:   d.Ups,
			Comments:  d.NumComments,
			Permalink: d.Permalink,
		})
	}
	return posts, nil
}
