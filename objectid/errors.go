package objectid

import "errors"

var errInvalidLength = errors.New("objectid: hex string must decode to 12 bytes")
