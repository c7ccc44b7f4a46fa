package models

import "errors"

// ErrInsufficientData reports a kernel that cannot produce a metric from
// the samples available. Scoring treats the affected component as zero;
// it is not a fatal condition.
var ErrInsufficientData = errors.New("insufficient data")
