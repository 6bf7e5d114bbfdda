package exception

import (
	"fmt"

	"github.com/vulntrack/api/pkg/domain/shared"
)

// Domain errors for exception requests.
var (
	ErrRequestNotFound = fmt.Errorf("exception request %w", shared.ErrNotFound)
)
