package spotify

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// AuthURL is the client credentials token endpoint
	AuthURL = "https://accounts.spotify.com/api/token"

	// BaseURL is the root of the Web API
	BaseURL = "https://api.spotify.com/v1"

	// PageLimit is the page size requested from list endpoints
	PageLimit = 50
)

func (c *Client) searchArtistURL(name string) string {
	params := url.Values{}
	params.Set("q", name)
	params.Set("type", "artist")
	params.Set("limit", "1")
	if c.market != "" {
		params.Set("market", c.market)
	}
	return fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())
}

func (c *Client) artistAlbumsURL(artistID string) string {
	return c.pagedURL(fmt.Sprintf("/artists/%s/albums", url.PathEscape(artistID)))
}

func (c *Client) albumTracksURL(albumID string) string {
	return c.pagedURL(fmt.Sprintf("/albums/%s/tracks", url.PathEscape(albumID)))
}

func (c *Client) trackURL(trackID string) string {
	u := fmt.Sprintf("%s/tracks/%s", c.baseURL, url.PathEscape(trackID))
	if c.market != "" {
		u += "?market=" + url.QueryEscape(c.market)
	}
	return u
}

func (c *Client) pagedURL(path string) string {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(PageLimit))
	if c.market != "" {
		params.Set("market", c.market)
	}
	return fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
}

// pageTarget names a page request in retry diagnostics
func pageTarget(path string, page int) string {
	if page <= 1 {
		return "GET " + path
	}
	return fmt.Sprintf("GET %s (page %d)", path, page)
}

func trimBase(base string) string {
	return strings.TrimRight(base, "/")
}
