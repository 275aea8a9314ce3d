package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteCredentialsGuide prints how to obtain client credentials from the
// Spotify developer dashboard
func WriteCredentialsGuide(w io.Writer) {
	line := strings.Repeat("=", 72)

	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "SPOTIFY CLIENT CREDENTIALS")
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "spotifetch uses the client credentials flow and needs a client id")
	fmt.Fprintln(w, "and secret from a Spotify application:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  1. Open https://developer.spotify.com/dashboard and log in")
	fmt.Fprintln(w, "  2. Create an app (any redirect URI will do)")
	fmt.Fprintln(w, "  3. Open the app settings and copy the Client ID")
	fmt.Fprintln(w, "  4. Click \"View client secret\" and copy the secret")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Then either run:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  spotifetch auth login")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "or export the variables:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  export SPOTIFY_CLIENT_ID=<client id>")
	fmt.Fprintln(w, "  export SPOTIFY_CLIENT_SECRET=<client secret>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Never commit the secret to version control.")
	fmt.Fprintln(w, line)
}
