// services/specification_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var errNoSpecification = errors.New("no specification source configured")

// LoadSpecification fetches each dataset definition and saves it with its
// fields. Existing datasets are updated in place; records are untouched. A
// dataset that cannot be fetched is logged and skipped.
func (s *Service) LoadSpecification(ctx context.Context, datasetIDs ...string) (int, error) {
	if s.spec == nil {
		return 0, errNoSpecification
	}

	loaded := 0
	var errs []error
	for _, id := range datasetIDs {
		ds, err := s.spec.Dataset(ctx, id)
		if err != nil {
			slog.Error("Service: failed to fetch specification", "dataset", id, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		if err := s.store.SaveDataset(ctx, ds, s.clock()); err != nil {
			errs = append(errs, err)
			continue
		}
		loaded++
	}
	slog.Info("Service: loaded specification", "requested", len(datasetIDs), "loaded", loaded)
	return loaded, errors.Join(errs...)
}
