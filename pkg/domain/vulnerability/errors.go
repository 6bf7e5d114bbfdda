package vulnerability

import (
	"fmt"

	"github.com/vulntrack/api/pkg/domain/shared"
)

// Domain errors for vulnerabilities.
var (
	ErrVulnerabilityNotFound = fmt.Errorf("vulnerability %w", shared.ErrNotFound)
)

// NotFoundError creates a vulnerability not found error with the ID.
func NotFoundError(id shared.ID) error {
	return fmt.Errorf("%w: id=%s", ErrVulnerabilityNotFound, id.String())
}
