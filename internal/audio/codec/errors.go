package codec

import (
	"errors"
	"fmt"

	"github.com/screamrouter/screamrouter/internal/audio"
)

// errInvalidHeader is returned for any header that fails StreamFormat.Validate
// or that encodes a sample rate with no valid base/multiplier decomposition.
// It wraps audio.ErrMalformedPacket so callers can test with errors.Is.
var errInvalidHeader = fmt.Errorf("%w: invalid header", audio.ErrMalformedPacket)

// IsMalformed reports whether err originated from a header/length validation
// failure in this package.
func IsMalformed(err error) bool {
	return errors.Is(err, audio.ErrMalformedPacket)
}
