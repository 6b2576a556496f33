package catalog

import (
	"context"
	"fmt"

	"github.com/airbusgeo/s1ard-worklist/catalog/entities"
)

// Archive is a searchable index of scene metadata records.
type Archive interface {
	// Select returns the ordered, de-duplicated locations of the scenes
	// matching the query.
	Select(ctx context.Context, query entities.Query) ([]string, error)
	// Close releases the catalog connection.
	Close() error
}

// SceneSelector is implemented by archives able to resolve their records into
// fully parsed scenes without a local identification pass.
type SceneSelector interface {
	SelectScenes(ctx context.Context, query entities.Query) ([]*entities.Scene, error)
}

// Reference is a secondary catalog used to cross-check a primary archive,
// e.g. before declaring a data-take gap.
type Reference interface {
	// SceneNames returns the sorted scene identifiers matching the query.
	SceneNames(ctx context.Context, query entities.Query) ([]string, error)
}

// ErrSceneNotFound is returned when a catalog-referenced scene is absent on
// local storage while existence-checking is requested.
type ErrSceneNotFound struct {
	Path string
}

func (e ErrSceneNotFound) Error() string {
	return fmt.Sprintf("scene does not exist locally: %s", e.Path)
}
