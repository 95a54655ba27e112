package orm

import (
	"atlas/pkg/keys"

	"github.com/pkg/errors"
)

// Configuration errors. They describe a programming or schema mistake and are
// never swallowed by the loader.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrUnknownRelation = errors.New("unknown relation")
	ErrInvalidRelation = errors.New("relation factory did not return a relation")
	ErrInvalidRelated  = errors.New("invalid related specification")
	ErrNoTable         = errors.New("mapper has no table")
	ErrNoExecutor      = errors.New("mapper has no executor")
	ErrNoTarget        = errors.New("no target identity given")
	ErrUnsafeDestroy   = errors.New("refusing to delete without constraints")
	ErrUnsupported     = errors.New("unsupported relation usage")
)

// Not-found errors. ErrNotFound is reported for a single missing record,
// ErrNoRowsFound for an empty multi-record result.
var (
	ErrNotFound    = errors.New("not found")
	ErrNoRowsFound = errors.New("no rows found")
)

var configurationErrors = []error{
	ErrConfiguration,
	ErrUnknownRelation,
	ErrInvalidRelation,
	ErrInvalidRelated,
	ErrNoTable,
	ErrNoExecutor,
	ErrNoTarget,
	ErrUnsafeDestroy,
	ErrUnsupported,
	keys.ErrIncompatibleKeys,
	keys.ErrKeyLength,
	keys.ErrMissingKeyField,
	keys.ErrNotARecord,
}

// IsConfigurationError reports whether err stems from a misconfigured mapper,
// relation or key rather than from the database.
func IsConfigurationError(err error) bool {
	for _, target := range configurationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound matches both not-found variants.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoRowsFound)
}
