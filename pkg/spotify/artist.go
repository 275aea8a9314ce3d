package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"spotifetch/internal/fetcher"
	errs "spotifetch/pkg/errors"
)

// LookupArtistID returns the id of the best search match for name
func (c *Client) LookupArtistID(ctx context.Context, name string) (string, error) {
	c.logger.DebugWithFields("searching artist", map[string]interface{}{
		"artist": name,
	})

	resp, err := getWithRetry[searchResponse](ctx, c, "GET /search", c.searchArtistURL(name))
	if err != nil {
		return "", err
	}

	if len(resp.Artists.Items) == 0 || resp.Artists.Items[0].ID == "" {
		return "", &errs.Error{
			Kind:    errs.KindNotFound,
			Message: fmt.Sprintf("no artist matching %q", name),
			Code:    http.StatusNotFound,
		}
	}

	artist := resp.Artists.Items[0]
	c.logger.DebugWithFields("artist found", map[string]interface{}{
		"artist":    name,
		"artist_id": artist.ID,
		"match":     artist.Name,
	})
	return artist.ID, nil
}

// ListAlbums returns the ids of all albums of an artist, following pages
func (c *Client) ListAlbums(ctx context.Context, artistID string) ([]string, error) {
	path := fmt.Sprintf("/artists/%s/albums", artistID)
	albums, err := collectPages[Album](ctx, c, path, c.artistAlbumsURL(artistID))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(albums))
	for _, a := range albums {
		if a.ID != "" {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

// ListTracks returns the track ids of an album, following pages. Tracks
// without an id (local files) are skipped.
func (c *Client) ListTracks(ctx context.Context, albumID string) ([]string, error) {
	path := fmt.Sprintf("/albums/%s/tracks", albumID)
	refs, err := collectPages[trackRef](ctx, c, path, c.albumTracksURL(albumID))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.ID != nil && *r.ID != "" {
			ids = append(ids, *r.ID)
		}
	}
	return ids, nil
}

// FetchTrack returns the full record of a track
func (c *Client) FetchTrack(ctx context.Context, trackID string) (Track, error) {
	return getWithRetry[Track](ctx, c, "GET /tracks/"+trackID, c.trackURL(trackID))
}

// collectPages walks a paging object. Every page is a separately retried
// call; a failure on any page fails the whole listing.
func collectPages[T any](ctx context.Context, c *Client, path, firstURL string) ([]T, error) {
	var items []T
	seen := map[string]bool{}

	next := firstURL
	for n := 1; next != "" && !seen[next]; n++ {
		seen[next] = true

		if err := sameOrigin(c.baseURL, next); err != nil {
			return nil, err
		}

		p, err := getWithRetry[page[T]](ctx, c, pageTarget(path, n), next)
		if err != nil {
			return nil, err
		}
		items = append(items, p.Items...)

		next = ""
		if p.Next != nil {
			next = *p.Next
		}
	}

	return items, nil
}

// sameOrigin rejects next links that point away from the API host so the
// bearer token is never sent elsewhere
func sameOrigin(base, link string) error {
	b, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	l, err := url.Parse(link)
	if err != nil {
		return &errs.Error{Kind: errs.KindParsing, Message: fmt.Sprintf("invalid next link %q", link), Err: err}
	}
	if l.Scheme != b.Scheme || l.Host != b.Host {
		return &errs.Error{Kind: errs.KindParsing, Message: fmt.Sprintf("next link %q leaves %s", link, b.Host)}
	}
	return nil
}

// UniqueIDs removes duplicates from ids, keeping the first occurrence
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}

// CollectArtistTracks walks artist -> albums -> tracks and fetches every
// unique track once. The first unrecovered failure aborts the walk and no
// partial results are returned.
func (c *Client) CollectArtistTracks(ctx context.Context, name string) ([]Track, error) {
	start := time.Now()

	artistID, err := c.LookupArtistID(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("lookup artist %q: %w", name, err)
	}

	albums, err := c.ListAlbums(ctx, artistID)
	if err != nil {
		return nil, fmt.Errorf("list albums of %s: %w", artistID, err)
	}

	var trackIDs []string
	for _, albumID := range albums {
		ids, err := c.ListTracks(ctx, albumID)
		if err != nil {
			return nil, fmt.Errorf("list tracks of album %s: %w", albumID, err)
		}
		trackIDs = append(trackIDs, ids...)
	}

	unique := UniqueIDs(trackIDs)
	c.logger.InfoWithFields("collected track ids", map[string]interface{}{
		"artist":     name,
		"albums":     len(albums),
		"tracks":     len(trackIDs),
		"unique":     len(unique),
		"concurrent": c.concurrency,
	})

	pool := fetcher.NewPool(c.concurrency, c.FetchTrack, c.logger).OnProgress(c.progress)
	tracks, err := pool.Run(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("fetch tracks: %w", err)
	}

	c.logger.InfoWithFields("fetched track details", map[string]interface{}{
		"artist":   name,
		"tracks":   len(tracks),
		"duration": time.Since(start),
	})
	return tracks, nil
}
