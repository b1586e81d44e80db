package rlibfactory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	registryTimeout = 45 * time.Second
	registryRetries = 6
)

var registryClient = &http.Client{Timeout: registryTimeout}

// httpGet fetches a URL with bounded retries. The backoff grows linearly with
// the attempt number and is capped at 5 seconds.
func httpGet(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for i := 1; i <= registryRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "rlibfactory/1.0")
		req.Header.Set("Accept", "application/json,text/plain,*/*")

		resp, err := registryClient.Do(req)
		if err == nil {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return body, nil
			}
			if readErr != nil {
				lastErr = readErr
			} else {
				lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, rawURL)
			}
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		backoff := time.Duration(i) * time.Second
		if backoff > 5*time.Second {
			backoff = 5 * time.Second
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

type registryVersion struct {
	Num    string `json:"num"`
	Yanked bool   `json:"yanked"`
}

type registryVersionList struct {
	Versions []registryVersion `json:"versions"`
}

type registryDependency struct {
	CrateID string `json:"crate_id"`
}

type registryDependencyList struct {
	Dependencies []registryDependency `json:"dependencies"`
}

// fetchNonYankedVersions queries the registry for every published version of
// a crate and returns the non-yanked ones in registry order (newest first).
func fetchNonYankedVersions(ctx context.Context, crate string) ([]string, error) {
	u := fmt.Sprintf("%s/crates/%s/versions", registryAPI, url.PathEscape(crate))
	data, err := httpGet(ctx, u)
	if err != nil {
		return nil, err
	}
	var list registryVersionList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("bad registry response for %s: %w", crate, err)
	}
	var versions []string
	for _, item := range list.Versions {
		if item.Yanked {
			continue
		}
		if v := item.Num; v != "" {
			versions = append(versions, v)
		}
	}
	return versions, nil
}

// fetchCrateDependencies returns the dependency crate names of one published
// crate version.
func fetchCrateDependencies(ctx context.Context, crate, version string) ([]string, error) {
	u := fmt.Sprintf("%s/crates/%s/%s/dependencies", registryAPI, url.PathEscape(crate), url.PathEscape(version))
	data, err := httpGet(ctx, u)
	if err != nil {
		return nil, err
	}
	var list registryDependencyList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("bad dependency response for %s:%s: %w", crate, version, err)
	}
	var names []string
	for _, dep := range list.Dependencies {
		if dep.CrateID != "" {
			names = append(names, dep.CrateID)
		}
	}
	return names, nil
}
