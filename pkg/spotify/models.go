package spotify

import "encoding/json"

// tokenResponse is the body of a successful client credentials exchange
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Artist is the subset of an artist object the client uses
type Artist struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type searchResponse struct {
	Artists struct {
		Items []Artist `json:"items"`
	} `json:"artists"`
}

// Album is a simplified album object as returned by list endpoints
type Album struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	ReleaseDate string `json:"release_date" yaml:"release_date"`
}

// page is one page of a paging object
type page[T any] struct {
	Items []T     `json:"items"`
	Next  *string `json:"next"`
	Total int     `json:"total"`
}

type trackRef struct {
	ID *string `json:"id"`
}

// Track is a full track object. Common fields are decoded; Raw keeps the
// complete document as returned by the API.
type Track struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	URI         string   `json:"uri" yaml:"uri"`
	DurationMs  int      `json:"duration_ms" yaml:"duration_ms"`
	Explicit    bool     `json:"explicit" yaml:"explicit"`
	Popularity  int      `json:"popularity" yaml:"popularity"`
	TrackNumber int      `json:"track_number" yaml:"track_number"`
	DiscNumber  int      `json:"disc_number" yaml:"disc_number"`
	Album       Album    `json:"album" yaml:"album"`
	Artists     []Artist `json:"artists" yaml:"artists"`

	Raw json.RawMessage `json:"-" yaml:"-"`
}

// UnmarshalJSON decodes the typed fields and keeps a copy of the document
func (t *Track) UnmarshalJSON(data []byte) error {
	type plain Track
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Track(p)
	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// ArtistNames returns the names of the credited artists
func (t *Track) ArtistNames() []string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return names
}
