package component

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/blob"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/httpctx"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/httpenvelope"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/twinerr"
)

// AssetsManager is the user-owned-binary-asset variant of §4.1: upload,
// list, get, download, update, delete over one record-store table carrying
// the asset fields of §3.1, gated by invariant 4's ownership/admin rule.
//
// When EnableTilesetUploads is set it additionally contributes the async
// upload endpoint of §4.5.2 for large ZIP-archive (tileset) assets: the
// upload lands on a temp file and the tileset_url/upload_status columns of
// §3.1 are populated by the uploads-queue worker rather than synchronously.
type AssetsManager struct {
	Base

	AdminRole            string
	MaxUploadBytes       int64
	EnableTilesetUploads bool
	MaxTilesetBytes      int64

	records     record.Store
	blobs       blob.Store
	uploadQueue UploadEnqueuer
}

// NewAssetsManager builds an AssetsManager. Its table name is its component
// name (invariant 6).
func NewAssetsManager(name, contentType, endpoint, adminRole string) *AssetsManager {
	return &AssetsManager{
		Base:            Base{Name: name, Variant: VariantAssetsManager, ContentType: contentType, Endpoint: endpoint},
		AdminRole:       adminRole,
		MaxUploadBytes:  25 << 20,
		MaxTilesetBytes: 512 << 20,
	}
}

func (a *AssetsManager) SetStores(records record.Store, blobs blob.Store) {
	a.records = records
	a.blobs = blobs
}

// SetUploadQueue satisfies UploadQueueConsumer; only relevant when
// EnableTilesetUploads is set.
func (a *AssetsManager) SetUploadQueue(q UploadEnqueuer) {
	a.uploadQueue = q
}

func (a *AssetsManager) Endpoints() []EndpointSpec {
	endpoints := []EndpointSpec{
		{Method: http.MethodPost, Path: "", Handler: a.handleUpload},
		{Method: http.MethodGet, Path: "", Handler: a.handleList},
		{Method: http.MethodGet, Path: "/{id}", Handler: a.handleGet},
		{Method: http.MethodGet, Path: "/{id}/download", Handler: a.handleDownload},
		{Method: http.MethodPatch, Path: "/{id}", Handler: a.handleUpdate},
		{Method: http.MethodDelete, Path: "/{id}", Handler: a.handleDelete},
	}
	if a.EnableTilesetUploads {
		endpoints = append(endpoints, EndpointSpec{Method: http.MethodPost, Path: "/tilesets", Handler: a.handleUploadTileset})
	}
	return endpoints
}

var _ Component = (*AssetsManager)(nil)
var _ Servable = (*AssetsManager)(nil)
var _ DependencyConsumer = (*AssetsManager)(nil)
var _ UploadQueueConsumer = (*AssetsManager)(nil)

func (a *AssetsManager) caller(r *http.Request) (record.User, error) {
	u, ok := httpctx.UserFromContext(r.Context())
	if !ok {
		return record.User{}, twinerr.New(twinerr.Authentication, "no authenticated caller")
	}
	return u, nil
}

func (a *AssetsManager) isAdmin(u record.User) bool {
	return a.AdminRole != "" && u.HasRole(a.AdminRole)
}

func (a *AssetsManager) canRead(u record.User, rec record.Record) bool {
	if a.isAdmin(u) || rec.IsPublic {
		return true
	}
	return rec.OwnerID != nil && *rec.OwnerID == u.ID
}

func (a *AssetsManager) canMutate(u record.User, rec record.Record) bool {
	if a.isAdmin(u) {
		return true
	}
	return rec.OwnerID != nil && *rec.OwnerID == u.ID
}

func (a *AssetsManager) handleUpload(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}

	source := r.URL.Query().Get("source")
	if source != "" {
		if u, perr := url.ParseRequestURI(source); perr != nil || !u.IsAbs() {
			httpenvelope.Error(w, r, twinerr.New(twinerr.Validation, "source must be an absolute URL"))
			return
		}
	}
	filename := r.URL.Query().Get("filename")
	isPublic := r.URL.Query().Get("is_public") == "true"

	data, err := io.ReadAll(io.LimitReader(r.Body, a.MaxUploadBytes+1))
	if err != nil {
		httpenvelope.Error(w, r, twinerr.Wrap(twinerr.FileOperation, "failed to read upload body", err))
		return
	}
	if int64(len(data)) > a.MaxUploadBytes {
		httpenvelope.Error(w, r, twinerr.New(twinerr.Validation, "upload exceeds maximum size"))
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = a.ContentType
	}

	handle, err := a.blobs.Save(r.Context(), a.Name, data, filepath.Ext(filename))
	if err != nil {
		httpenvelope.Error(w, r, twinerr.Wrap(twinerr.Storage, "failed to save asset blob", err))
		return
	}

	ownerID := caller.ID
	rec := record.Record{
		Name:        a.Name,
		ContentType: contentType,
		URL:         handle,
		Date:        time.Now().UTC(),
		Source:      source,
		Filename:    filename,
		IsPublic:    isPublic,
		OwnerID:     &ownerID,
	}
	saved, err := a.records.Insert(r.Context(), a.Name, rec)
	if err != nil {
		_ = a.blobs.Delete(r.Context(), handle)
		httpenvelope.Error(w, r, err)
		return
	}
	httpenvelope.WriteJSON(w, http.StatusCreated, saved)
}

// handleUploadTileset stages a ZIP archive for the async upload path of
// §4.5.2: the body is written to a temp file, a pending record is inserted
// immediately (url is populated only once the upload worker finishes), and
// the extraction is handed to the uploads queue.
func (a *AssetsManager) handleUploadTileset(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	if a.uploadQueue == nil {
		httpenvelope.Error(w, r, twinerr.New(twinerr.Configuration, "tileset uploads are not enabled for this component"))
		return
	}

	filename := r.URL.Query().Get("filename")

	tmp, err := os.CreateTemp("", a.Name+"-upload-*.zip")
	if err != nil {
		httpenvelope.Error(w, r, twinerr.Wrap(twinerr.FileOperation, "failed to create temp upload file", err))
		return
	}
	defer tmp.Close()

	written, err := io.Copy(tmp, io.LimitReader(r.Body, a.MaxTilesetBytes+1))
	if err != nil {
		_ = os.Remove(tmp.Name())
		httpenvelope.Error(w, r, twinerr.Wrap(twinerr.FileOperation, "failed to stage upload body", err))
		return
	}
	if written > a.MaxTilesetBytes {
		_ = os.Remove(tmp.Name())
		httpenvelope.Error(w, r, twinerr.New(twinerr.Validation, "tileset upload exceeds maximum size"))
		return
	}

	jobID := uuid.NewString()
	ownerID := caller.ID
	rec := record.Record{
		Name:         a.Name,
		ContentType:  "application/zip",
		Date:         time.Now().UTC(),
		Filename:     filename,
		OwnerID:      &ownerID,
		UploadStatus: record.UploadPending,
		UploadJobID:  jobID,
	}
	saved, err := a.records.Insert(r.Context(), a.Name, rec)
	if err != nil {
		_ = os.Remove(tmp.Name())
		httpenvelope.Error(w, r, err)
		return
	}

	basePath := path.Join(a.Name, "tilesets", saved.ID)
	payload := map[string]any{
		"recordID":     saved.ID,
		"tableName":    a.Name,
		"tempFilePath": tmp.Name(),
		"basePath":     basePath,
	}
	if err := a.uploadQueue.EnqueueUpload(a.Name, jobID, payload); err != nil {
		httpenvelope.Error(w, r, twinerr.Wrap(twinerr.Queue, "failed to enqueue tileset upload", err))
		return
	}
	httpenvelope.WriteJSON(w, http.StatusAccepted, saved)
}

func (a *AssetsManager) handleList(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	limit, offset := parseLimitOffset(r)

	if a.isAdmin(caller) {
		all, err := a.records.List(r.Context(), a.Name, "", limit, offset)
		if err != nil {
			httpenvelope.Error(w, r, err)
			return
		}
		httpenvelope.WriteJSON(w, http.StatusOK, all)
		return
	}

	own, err := a.records.List(r.Context(), a.Name, caller.ID, limit, offset)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	public, err := a.records.List(r.Context(), a.Name, "", limit, offset)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	seen := make(map[string]bool, len(own))
	visible := make([]record.Record, 0, len(own)+len(public))
	for _, rec := range own {
		seen[rec.ID] = true
		visible = append(visible, rec)
	}
	for _, rec := range public {
		if !seen[rec.ID] && rec.IsPublic {
			visible = append(visible, rec)
		}
	}
	httpenvelope.WriteJSON(w, http.StatusOK, visible)
}

func (a *AssetsManager) handleGet(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	rec, ok, err := a.records.Get(r.Context(), a.Name, chi.URLParam(r, "id"))
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	if !ok {
		httpenvelope.Error(w, r, twinerr.New(twinerr.NotFound, "asset not found"))
		return
	}
	if !a.canRead(caller, rec) {
		httpenvelope.Error(w, r, twinerr.New(twinerr.Authorization, "not permitted to read this asset"))
		return
	}
	httpenvelope.WriteJSON(w, http.StatusOK, rec)
}

func (a *AssetsManager) handleDownload(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	rec, ok, err := a.records.Get(r.Context(), a.Name, chi.URLParam(r, "id"))
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	if !ok {
		httpenvelope.Error(w, r, twinerr.New(twinerr.NotFound, "asset not found"))
		return
	}
	if !a.canRead(caller, rec) {
		httpenvelope.Error(w, r, twinerr.New(twinerr.Authorization, "not permitted to read this asset"))
		return
	}
	data, err := a.blobs.Retrieve(r.Context(), rec.URL)
	if err != nil {
		httpenvelope.Error(w, r, twinerr.Wrap(twinerr.Storage, "failed to retrieve asset blob", err))
		return
	}
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+rec.Filename+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type assetUpdateBody struct {
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
	Filename    *string `json:"filename"`
}

func (a *AssetsManager) handleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	rec, ok, err := a.records.Get(r.Context(), a.Name, id)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	if !ok {
		httpenvelope.Error(w, r, twinerr.New(twinerr.NotFound, "asset not found"))
		return
	}
	if !a.canMutate(caller, rec) {
		httpenvelope.Error(w, r, twinerr.New(twinerr.Authorization, "not permitted to update this asset"))
		return
	}
	var body assetUpdateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpenvelope.Error(w, r, twinerr.Wrap(twinerr.Validation, "invalid request body", err))
		return
	}
	fields := map[string]any{}
	if body.Description != nil {
		fields["description"] = *body.Description
	}
	if body.IsPublic != nil {
		fields["is_public"] = *body.IsPublic
	}
	if body.Filename != nil {
		fields["filename"] = *body.Filename
	}
	updated, err := a.records.Update(r.Context(), a.Name, id, fields)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	httpenvelope.WriteJSON(w, http.StatusOK, updated)
}

func (a *AssetsManager) handleDelete(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	rec, ok, err := a.records.Get(r.Context(), a.Name, id)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	if !ok {
		httpenvelope.Error(w, r, twinerr.New(twinerr.NotFound, "asset not found"))
		return
	}
	if !a.canMutate(caller, rec) {
		httpenvelope.Error(w, r, twinerr.New(twinerr.Authorization, "not permitted to delete this asset"))
		return
	}
	if err := a.records.Delete(r.Context(), a.Name, id); err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	if err := a.blobs.Delete(r.Context(), rec.URL); err != nil {
		httpenvelope.Error(w, r, twinerr.Wrap(twinerr.Storage, "record deleted but blob cleanup failed", err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func parseLimitOffset(r *http.Request) (int, int) {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
