// services/sync_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/gewnthar/registers/github"
	"github.com/google/uuid"
)

// PushStatus is the outcome of pushing one dataset.
type PushStatus string

const (
	PushUpdated   PushStatus = "updated"
	PushUnchanged PushStatus = "unchanged"
	PushFailed    PushStatus = "failed"
)

type PushResult struct {
	Dataset string
	Path    string
	Status  PushStatus
	Changes int // change log entries flagged as pushed
	Err     error
}

var errNoFileStore = errors.New("no file store configured")

// Push exports each dataset (all of them when none are named) and writes the
// CSV to the file store when its content differs from the remote copy. A
// dataset that fails is logged and skipped.
func (s *Service) Push(ctx context.Context, datasetIDs ...string) ([]PushResult, error) {
	if s.files == nil {
		return nil, errNoFileStore
	}
	if len(datasetIDs) == 0 {
		datasets, err := s.store.ListDatasets(ctx)
		if err != nil {
			return nil, err
		}
		for _, ds := range datasets {
			datasetIDs = append(datasetIDs, ds.ID)
		}
	}

	results := make([]PushResult, 0, len(datasetIDs))
	for _, id := range datasetIDs {
		result := s.pushDataset(ctx, id)
		if result.Err != nil {
			slog.Error("Service: failed to push dataset", "dataset", id, "path", result.Path, "error", result.Err)
		} else {
			slog.Info("Service: pushed dataset", "dataset", id, "status", result.Status, "changes", result.Changes)
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Service) pushDataset(ctx context.Context, datasetID string) PushResult {
	result := PushResult{Dataset: datasetID, Path: path.Join(s.registersPath, datasetID+".csv")}
	fail := func(err error) PushResult {
		result.Status = PushFailed
		result.Err = err
		return result
	}

	unpushed, err := s.store.UnpushedChangeLogs(ctx, datasetID)
	if err != nil {
		return fail(err)
	}
	content, err := s.exportBytes(ctx, datasetID)
	if err != nil {
		return fail(err)
	}

	remote, err := s.files.GetFile(ctx, result.Path)
	if err != nil {
		return fail(err)
	}
	result.Status = PushUnchanged
	if remote == nil || remote.SHA != github.BlobSHA(content) {
		sha := ""
		if remote != nil {
			sha = remote.SHA
		}
		message := fmt.Sprintf("Updated %s register", datasetID)
		if err := s.files.PutFile(ctx, result.Path, content, sha, message); err != nil {
			return fail(err)
		}
		result.Status = PushUpdated
	}

	ids := make([]uuid.UUID, len(unpushed))
	for i, c := range unpushed {
		ids[i] = c.ID
	}
	if err := s.store.MarkPushed(ctx, ids); err != nil {
		return fail(err)
	}
	result.Changes = len(ids)
	return result
}
