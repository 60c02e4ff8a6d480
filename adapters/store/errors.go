package store

import "errors"

var errDuplicate = errors.New("duplicate key")
