package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"spotifetch/pkg/spotify"
)

// encodeJSON writes the raw track documents as an indented array
func encodeJSON(w io.Writer, batch Batch) error {
	docs := make([]json.RawMessage, 0, len(batch.Tracks))
	for i := range batch.Tracks {
		doc, err := rawDocument(&batch.Tracks[i])
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(docs)
}

// rawDocument returns the document the API sent, or the typed fields for
// tracks built in code
func rawDocument(t *spotify.Track) (json.RawMessage, error) {
	if len(t.Raw) > 0 {
		return t.Raw, nil
	}
	doc, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal track %s: %w", t.ID, err)
	}
	return doc, nil
}

type yamlDocument struct {
	Artist      string          `yaml:"artist"`
	CollectedAt time.Time       `yaml:"collected_at"`
	Count       int             `yaml:"count"`
	Tracks      []spotify.Track `yaml:"tracks"`
}

func encodeYAML(w io.Writer, batch Batch) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	doc := yamlDocument{
		Artist:      batch.Artist,
		CollectedAt: batch.CollectedAt,
		Count:       len(batch.Tracks),
		Tracks:      batch.Tracks,
	}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}
