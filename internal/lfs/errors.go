package lfs

import "errors"

var (
	ErrInvalidOID     = errors.New("lfs: invalid object id")
	ErrObjectNotFound = errors.New("lfs: object not found")
	ErrHashMismatch   = errors.New("lfs: uploaded content does not match declared oid")
)
