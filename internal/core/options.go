package core

import (
	"errors"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Validate reports every problem with the run options at once. The
// credential is checked separately by Run so that its absence is reported
// as ErrCredentialMissing on its own.
func (o RunOptions) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(o.Request.Query) == "" {
		result = multierror.Append(result, errors.New("query is required"))
	}
	if _, err := ParseMode(string(o.Request.Mode)); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := ParseStrategy(string(o.Strategy)); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}
