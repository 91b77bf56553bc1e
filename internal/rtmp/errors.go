package rtmp

import "golang.org/x/xerrors"

// wrapParse attaches msg to ErrParse using xerrors' %w verb, so
// errors.Is(err, ErrParse) and errors.As still work across this
// package's boundary the same way they would with pkg/errors, while
// also satisfying xerrors.Is/As for callers that prefer it.
func wrapParse(msg string) error {
	return xerrors.Errorf("%s: %w", msg, ErrParse)
}
