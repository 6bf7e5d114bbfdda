package asset

import (
	"fmt"

	"github.com/vulntrack/api/pkg/domain/shared"
)

// Domain errors for assets.
var (
	ErrAssetNotFound      = fmt.Errorf("asset %w", shared.ErrNotFound)
	ErrAssetAlreadyExists = fmt.Errorf("asset %w", shared.ErrAlreadyExists)
)

// NotFoundError creates an asset not found error with the ID.
func NotFoundError(assetID shared.ID) error {
	return fmt.Errorf("%w: id=%s", ErrAssetNotFound, assetID.String())
}

// NotFoundByHostnameError creates an asset not found error with the hostname.
func NotFoundByHostnameError(hostname string) error {
	return fmt.Errorf("%w: hostname=%s", ErrAssetNotFound, hostname)
}

// AlreadyExistsError creates an asset already exists error with the hostname.
func AlreadyExistsError(hostname string) error {
	return fmt.Errorf("%w: hostname=%s", ErrAssetAlreadyExists, hostname)
}
