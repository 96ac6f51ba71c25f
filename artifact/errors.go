package artifact

import (
	"fmt"

	"github.com/hupe1980/agentrelay/core"
)

// ErrNotFound is returned when an artifact for the given session / id pair
// does not exist. It wraps core.ErrNotFound.
var ErrNotFound = fmt.Errorf("artifact: %w", core.ErrNotFound)
