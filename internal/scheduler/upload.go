package scheduler

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/blob"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/twinerr"
	"github.com/CePseudoBE/digitaltwin-sub001/pkg/logger"
)

// tilesetManifestName is the conventional root manifest file a tileset ZIP
// carries; when present it is preferred over whichever entry happened to
// extract first.
const tilesetManifestName = "tileset.json"

// UploadWorker implements the async tileset upload path of §4.5.2: read the
// ZIP an upload-heavy component staged to a temp file, extract and upload
// each entry under a unique base path, and mark the owning record completed
// or failed. It is invoked directly as the uploads queue's Handler,
// independent of the component registry the collector/harvester dispatch
// path resolves against.
type UploadWorker struct {
	records record.Store
	blobs   blob.Store
	log     *logger.Logger
}

// NewUploadWorker builds an UploadWorker over the shared record/blob stores.
func NewUploadWorker(records record.Store, blobs blob.Store, log *logger.Logger) *UploadWorker {
	if log == nil {
		log = logger.NewDefault("upload-worker")
	}
	return &UploadWorker{records: records, blobs: blobs, log: log}
}

// uploadPayload is the job.Data shape an upload-enqueuing component builds
// when it stages a ZIP (§4.5.2).
type uploadPayload struct {
	RecordID     string
	TableName    string
	TempFilePath string
	BasePath     string
}

func parseUploadPayload(data map[string]any) (uploadPayload, error) {
	get := func(k string) string {
		v, _ := data[k].(string)
		return v
	}
	p := uploadPayload{
		RecordID:     get("recordID"),
		TableName:    get("tableName"),
		TempFilePath: get("tempFilePath"),
		BasePath:     get("basePath"),
	}
	if p.RecordID == "" || p.TableName == "" || p.TempFilePath == "" || p.BasePath == "" {
		return p, fmt.Errorf("upload job missing required fields")
	}
	return p, nil
}

// Handle processes one upload job (§4.5.2). It never propagates an error to
// the queue: the uploads queue's attempts=1 policy means a retry would
// never happen anyway, and the worker's own bookkeeping already records the
// failure on the row for debugging.
func (u *UploadWorker) Handle(ctx context.Context, job queue.Job) error {
	p, err := parseUploadPayload(job.Data)
	if err != nil {
		u.log.WithField("job", job.ID).Error("malformed upload job: ", err)
		return nil
	}

	if _, err := u.records.Update(ctx, p.TableName, p.RecordID, map[string]any{
		"upload_status": string(record.UploadProcessing),
	}); err != nil {
		u.log.WithField("record", p.RecordID).Error("failed to mark upload processing: ", err)
	}

	manifest, uploaded, err := u.extractAndUpload(ctx, p)
	if err != nil {
		u.fail(ctx, p, uploaded, err)
		return nil
	}

	manifestURL := u.blobs.PublicURL(path.Join(p.BasePath, manifest))
	if _, err := u.records.Update(ctx, p.TableName, p.RecordID, map[string]any{
		"url":           p.BasePath,
		"tileset_url":   manifestURL,
		"upload_status": string(record.UploadCompleted),
	}); err != nil {
		u.log.WithField("record", p.RecordID).Error("failed to mark upload completed: ", err)
	}
	twinerr.SafeAsync(u.logf, "remove temp upload file", func() error {
		return removeIfExists(p.TempFilePath)
	})
	return nil
}

// extractAndUpload reads every file entry out of the ZIP at p.TempFilePath
// and uploads it under p.BasePath, returning the chosen manifest entry name
// and the handles of everything it managed to upload before any failure (so
// a caller can reclaim them).
func (u *UploadWorker) extractAndUpload(ctx context.Context, p uploadPayload) (string, []string, error) {
	zr, err := zip.OpenReader(p.TempFilePath)
	if err != nil {
		return "", nil, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	var manifest string
	uploaded := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return manifest, uploaded, fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return manifest, uploaded, fmt.Errorf("read entry %s: %w", f.Name, err)
		}
		handle, err := u.blobs.SaveAtPath(ctx, path.Join(p.BasePath, f.Name), data)
		if err != nil {
			return manifest, uploaded, fmt.Errorf("upload entry %s: %w", f.Name, err)
		}
		uploaded = append(uploaded, handle)
		if manifest == "" || f.Name == tilesetManifestName {
			manifest = f.Name
		}
	}
	if manifest == "" {
		return "", uploaded, fmt.Errorf("zip archive contained no files")
	}
	return manifest, uploaded, nil
}

// fail marks the record failed and best-effort reclaims whatever the
// partial extraction already uploaded, per §4.5.2: "best-effort delete of
// any uploaded files under the base path and the temp file. The record is
// preserved for debugging."
func (u *UploadWorker) fail(ctx context.Context, p uploadPayload, uploaded []string, cause error) {
	if _, err := u.records.Update(ctx, p.TableName, p.RecordID, map[string]any{
		"upload_status": string(record.UploadFailed),
		"upload_error":  cause.Error(),
	}); err != nil {
		u.log.WithField("record", p.RecordID).Error("failed to mark upload failed: ", err)
	}
	if len(uploaded) > 0 {
		twinerr.SafeAsync(u.logf, "reclaim partial tileset upload", func() error {
			_, err := u.blobs.DeleteByPrefix(ctx, p.BasePath)
			return err
		})
	}
	twinerr.SafeAsync(u.logf, "remove temp upload file", func() error {
		return removeIfExists(p.TempFilePath)
	})
}

func (u *UploadWorker) logf(format string, args ...any) {
	u.log.Errorf(format, args...)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
