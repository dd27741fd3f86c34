package plr

import "errors"

// ErrDegenerate is the PLR fitter's only failure mode: no points were given
// to fit a segment from.
var ErrDegenerate = errors.New("plr: degenerate input, no points to fit")
