package syncer

import "errors"

var errMissingField = errors.New("payload missing required field")

// errInsufficientPayload normalizes "decoded but incomplete" payloads into a
// reportable error.
func errInsufficientPayload(err error) error {
	if err != nil {
		return err
	}
	return errMissingField
}
