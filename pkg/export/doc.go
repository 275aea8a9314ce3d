// Package export writes collected track records to disk.
//
// Three formats are supported:
//   - json: an array of the track documents exactly as the API returned them
//   - yaml: a document with the artist, collection time and typed track fields
//   - sqlite: a tracks table keyed by track id, upserted on every run
//
// JSON and YAML files are written atomically through a temporary file and a
// rename, so an interrupted run never leaves a truncated file behind. A path
// of "-" writes JSON or YAML to standard output.
//
// Usage:
//
//	w, err := export.New(export.FormatJSON, "tracks.json")
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//	err = w.Write(ctx, export.Batch{Artist: "Radiohead", Tracks: tracks})
package export
