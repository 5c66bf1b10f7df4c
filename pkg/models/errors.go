package models

import "errors"

// ErrNoQuote signals that a quote source has no current bid or ask for a
// well-formed symbol. Callers decide whether to skip or degrade to zero.
var ErrNoQuote = errors.New("no current quote")
