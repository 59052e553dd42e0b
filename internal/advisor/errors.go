package advisor

import (
	"errors"
	"fmt"
)

// ErrCostModelConfiguration marks an invalid or missing cost-model parameter.
// It is the only error kind that aborts a run: pricing findings without a
// valid model is meaningless. All other failures are recovered at the
// narrowest possible scope.
var ErrCostModelConfiguration = errors.New("invalid cost model configuration")

func costModelError(field string, detail string) error {
	return fmt.Errorf("%w: %s %s", ErrCostModelConfiguration, field, detail)
}

// ConversionError reports a malformed upstream evidence record. The record is
// skipped and counted; the run continues.
type ConversionError struct {
	Source string
	Detail string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("evidence conversion: %s: %s", e.Source, e.Detail)
}
