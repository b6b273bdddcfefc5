package github

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/bull/study-rag-server/internal/indexer"
)

// DefaultExtensions are the file types treated as study resources.
var DefaultExtensions = []string{".md", ".markdown", ".txt"}

// FetchedResource represents a text resource fetched from GitHub
type FetchedResource struct {
	Path    string // Relative path within the base directory
	Content string // Decoded file content
	URL     string // GitHub HTML URL, cited back in answers
}

// Fetcher handles fetching study resources from a GitHub repository directory
type Fetcher struct {
	client     *Client
	owner      string
	repo       string
	basePath   string
	extensions []string
}

// ParseLocation splits "owner/repo[/path]" into its parts.
func ParseLocation(location string) (owner, repo, basePath string, err error) {
	parts := strings.SplitN(strings.Trim(location, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid GitHub location %q, want owner/repo/path", location)
	}
	if len(parts) == 3 {
		basePath = parts[2]
	}
	return parts[0], parts[1], basePath, nil
}

// NewFetcher creates a new resource fetcher
func NewFetcher(client *Client, owner, repo, basePath string) *Fetcher {
	return &Fetcher{
		client:     client,
		owner:      owner,
		repo:       repo,
		basePath:   basePath,
		extensions: DefaultExtensions,
	}
}

// ListResources recursively lists all resource files under the base directory
func (f *Fetcher) ListResources(ctx context.Context) ([]string, error) {
	return f.listRecursive(ctx, f.basePath, "")
}

// listRecursive traverses directories to find all files with a resource extension
func (f *Fetcher) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var files []string

	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if f.isResource(*item.Name) {
				files = append(files, itemRelPath)
			}
		case "dir":
			subFiles, err := f.listRecursive(ctx, path.Join(fullPath, *item.Name), itemRelPath)
			if err != nil {
				return nil, err
			}
			files = append(files, subFiles...)
		}
	}

	return files, nil
}

func (f *Fetcher) isResource(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range f.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// FetchResource fetches the content of a specific resource file
func (f *Fetcher) FetchResource(ctx context.Context, relativePath string) (*FetchedResource, error) {
	fullPath := path.Join(f.basePath, relativePath)

	fileContent, _, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}

	return &FetchedResource{
		Path:    relativePath,
		Content: content,
		URL:     fileContent.GetHTMLURL(),
	}, nil
}

// FetchAll lists and fetches every resource, returning them in listing order
// ready for indexing. Any failed fetch fails the call.
func (f *Fetcher) FetchAll(ctx context.Context) ([]indexer.ResourceText, error) {
	paths, err := f.ListResources(ctx)
	if err != nil {
		return nil, err
	}

	resources := make([]indexer.ResourceText, 0, len(paths))
	for _, p := range paths {
		res, err := f.FetchResource(ctx, p)
		if err != nil {
			return nil, err
		}
		resources = append(resources, indexer.ResourceText{Name: res.Path, Text: res.Content, URL: res.URL})
	}
	return resources, nil
}
