package ingress

import (
	"encoding/base64"
	"errors"
	"strings"
)

// errMalformedDataURL is returned when a frame payload isn't a
// comma-delimited data URL.
var errMalformedDataURL = errors.New("ingress: frame payload is not a data URL")

// decodeDataURL splits a "data:image/...;base64,<payload>" string on its
// first comma and base64-decodes the remainder. It only undoes the
// transport encoding: the result is still an encoded image, and
// handleFrame passes it on as Frame.Pixels without converting it to a
// luminance pixel grid or setting Frame.Width/Height.
func decodeDataURL(s string) ([]byte, error) {
	idx := strings.IndexByte(s, ',')
	if idx < 0 {
		return nil, errMalformedDataURL
	}
	decoded, err := base64.StdEncoding.DecodeString(s[idx+1:])
	if err != nil {
		return nil, err
	}
	return decoded, nil
}
