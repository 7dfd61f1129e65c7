package store

import "errors"

var (
	ErrNotFound      = errors.New("record not found")
	ErrNoCursor      = errors.New("no sync cursor recorded")
	ErrMediaNotLocal = errors.New("media asset has no local file")
)
