package db

import "errors"

var (
	// ErrKeyNotFound: the key or hash field does not exist.
	ErrKeyNotFound = errors.New("db: key not found")
	// ErrIndexNotFound: the FT index is missing (never created, or dropped by FLUSHALL).
	ErrIndexNotFound = errors.New("db: index not found")
	// ErrIndexExists: a concurrent FT.CREATE got there first.
	ErrIndexExists = errors.New("db: index already exists")
)

// Command names reported in Error.Op.
const (
	OpCreateIndex = "FT.CREATE"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpHSet        = "HSET"
	OpHGet        = "HGET"
	OpHGetAll     = "HGETALL"
	OpDel         = "DEL"
	OpGet         = "GET"
	OpSet         = "SET"
	OpIncr        = "INCR"
)

// Error carries the failed command alongside the client error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
