package fetcher

import (
	"io"
	"mime"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 8 << 20

// readBody reads at most maxBodyBytes and decodes them to UTF-8 using the
// charset declared in contentType. Unknown charsets are read as-is.
func readBody(r io.Reader, contentType string) (string, error) {
	r = io.LimitReader(r, maxBodyBytes)
	if cs := charsetOf(contentType); cs != "" && cs != "utf-8" && cs != "utf8" {
		if enc, err := htmlindex.Get(cs); err == nil {
			r = enc.NewDecoder().Reader(r)
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: read body")
	}
	return string(data), nil
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}
