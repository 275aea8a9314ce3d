// Package spotify provides a small client for the Spotify Web API.
//
// This package includes:
//   - Client credentials authentication against the accounts service
//   - Read calls for artists, albums and tracks, each wrapped in a retry policy
//   - Typed errors (see pkg/errors) classified at the transport boundary
//   - CollectArtistTracks, which walks artist -> albums -> tracks -> track details
//
// Example usage:
//
//	client := spotify.NewClient(30*time.Second, log,
//	    spotify.WithPolicy(retry.DefaultPolicy().WithObserver(retry.NewLogObserver(log))),
//	)
//
//	if _, err := client.Authenticate(ctx, clientID, clientSecret); err != nil {
//	    return err
//	}
//
//	tracks, err := client.CollectArtistTracks(ctx, "Radiohead")
//	if err != nil {
//	    if errors.IsRetryExhausted(err) {
//	        // every attempt hit a network failure or a 429
//	    }
//	    return err
//	}
package spotify
