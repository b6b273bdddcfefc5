// Package github fetches study resources from a GitHub repository directory.
package github

import (
	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client wraps the GitHub API client with rate limiting support
type Client struct {
	*github.Client
}

// NewClient creates a new GitHub client with optional authentication and rate limiting.
// An empty token gives an unauthenticated client (60 requests/hour).
// Rate limiting is automatically handled by waiting out the reset window.
func NewClient(token string) (*Client, error) {
	// Handles both primary and secondary rate limits with automatic retry
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}

	ghClient := github.NewClient(rateLimiter)
	if token != "" {
		ghClient = ghClient.WithAuthToken(token)
	}

	return &Client{Client: ghClient}, nil
}
