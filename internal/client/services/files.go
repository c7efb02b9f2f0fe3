package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/dmitrijs2005/lazydrop/internal/client/client"
	"github.com/dmitrijs2005/lazydrop/internal/client/eventbus"
	"github.com/dmitrijs2005/lazydrop/internal/client/models"
	"github.com/dmitrijs2005/lazydrop/internal/common"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var errNotReady = errors.New("file is not ready for download")

// Source is one file selected for upload.
type Source struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FileSource describes the file at path.
func FileSource(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Source{}, err
	}
	if fi.IsDir() {
		return Source{}, fmt.Errorf("%s is a directory", path)
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return Source{
		Name:        fi.Name(),
		Size:        fi.Size(),
		ContentType: ct,
		Open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

func isLocalUpload(f models.TransferredFile) bool {
	return strings.HasPrefix(f.Key.ClientID, common.TempIDPrefix)
}

// ProcessFiles uploads srcs into the current session. Oversized files are
// rejected up front with a single toast. Every other file gets its own row
// and fails or succeeds on its own.
func (s *SessionService) ProcessFiles(ctx context.Context, srcs []Source) error {
	sid, gen, err := s.requireSession()
	if err != nil {
		return err
	}

	var accepted []Source
	var rejected []string
	for _, src := range srcs {
		if src.Size > s.cfg.MaxFileSize {
			rejected = append(rejected, src.Name)
			continue
		}
		accepted = append(accepted, src)
	}
	if len(rejected) > 0 {
		s.toast(models.Toast{
			Severity: models.SeverityError,
			Message: fmt.Sprintf("Too large to send (limit %s): %s",
				humanize.IBytes(uint64(s.cfg.MaxFileSize)), strings.Join(rejected, ", ")),
		})
	}
	if len(accepted) == 0 {
		if len(rejected) > 0 {
			return common.ErrFileTooLarge
		}
		return nil
	}

	ids := make([]string, len(accepted))
	if !s.update(gen, func() {
		meID := s.me.ID
		for i, src := range accepted {
			ids[i] = common.TempIDPrefix + uuid.NewString()
			s.files = append(s.files, models.TransferredFile{
				Key:         models.FileKey{ClientID: ids[i]},
				Name:        src.Name,
				Size:        src.Size,
				ContentType: src.ContentType,
				UploaderID:  meID,
				Status:      models.FileUploading,
				CreatedAt:   s.now(),
			})
		}
	}) {
		return errSuperseded
	}

	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(s.cfg.UploadConcurrency)
	for i, src := range accepted {
		clientID := ids[i]
		g.Go(func() error {
			if err := s.upload(ctx, gen, sid, clientID, src); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	if len(rejected) > 0 {
		errs = append(errs, fmt.Errorf("%w: %s", common.ErrFileTooLarge, strings.Join(rejected, ", ")))
	}
	if n := failed.Load(); n > 0 {
		errs = append(errs, fmt.Errorf("%d of %d uploads failed", n, len(accepted)))
	}
	return errors.Join(errs...)
}

func (s *SessionService) upload(ctx context.Context, gen uint64, sid, clientID string, src Source) error {
	log := s.logger.With("session_id", sid, "file", src.Name)

	fail := func(stage string, err error) error {
		s.update(gen, func() {
			if i := models.FindFile(s.files, clientID); i >= 0 && s.files[i].Status == models.FileUploading {
				s.files[i].Status = models.FileError
			}
		})
		log.Warn(ctx, "upload failed", "stage", stage, "error", err)
		if s.isCurrent(gen) {
			s.toast(toastFor("upload "+src.Name, err))
		}
		return err
	}

	ct := src.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	target, err := s.api.RequestUploadURL(ctx, sid, client.UploadURLRequest{
		FileName: src.Name, FileSize: src.Size, ContentType: ct,
	})
	if err != nil {
		return fail("upload-url", err)
	}

	body, err := src.Open()
	if err != nil {
		return fail("open", err)
	}
	err = s.transfer.Upload(ctx, target.UploadURL, body, src.Size, ct, target.Headers, func(sent, total int64) {
		pct := 0
		if total > 0 {
			pct = int(sent * 100 / total)
		}
		s.update(gen, func() {
			if i := models.FindFile(s.files, clientID); i >= 0 && s.files[i].Status == models.FileUploading {
				s.files[i].SetProgress(pct)
			}
		})
	})
	_ = body.Close()
	if err != nil {
		return fail("transfer", err)
	}

	dto, err := s.api.ConfirmUpload(ctx, sid, client.ConfirmUploadRequest{
		StorageKey: target.StorageKey, FileName: src.Name, FileSize: src.Size, ContentType: ct,
	})
	if err != nil {
		return fail("confirm", err)
	}

	var row models.TransferredFile
	if !s.update(gen, func() {
		i := models.FindFile(s.files, clientID)
		if i < 0 {
			return
		}
		f := &s.files[i]
		f.Key.ServerID = dto.ID
		if f.Status != models.FileDownloaded {
			f.Status = models.FileUploaded
		}
		f.Progress = 100
		row = *f
		s.files = dropDuplicateServerRows(s.files, i)
	}) {
		return errSuperseded
	}

	log.Info(ctx, "upload confirmed", "file_id", dto.ID, "size", src.Size)
	s.bus.Emit(eventbus.FileUploaded, row)
	s.success("Sent " + src.Name)
	return nil
}

// dropDuplicateServerRows removes rows other than keep that carry the same
// server id as rows[keep].
func dropDuplicateServerRows(rows []models.TransferredFile, keep int) []models.TransferredFile {
	id := rows[keep].Key.ServerID
	out := rows[:0]
	for i, r := range rows {
		if i != keep && r.Key.ServerID == id {
			continue
		}
		out = append(out, r)
	}
	return out
}

// DownloadFile saves the file through the configured sink and marks it as
// downloaded here and on the server.
func (s *SessionService) DownloadFile(ctx context.Context, fileID string) error {
	return s.download(ctx, fileID, false)
}

// download is shared by manual, bulk and automatic downloads. With auto set,
// files already downloaded are skipped silently and a missing session is not
// reported to the user.
func (s *SessionService) download(ctx context.Context, fileID string, auto bool) error {
	sid, gen, ok := s.current()
	if !ok {
		if !auto {
			s.toast(toastFor("continue", common.ErrNoActiveSession))
		}
		return common.ErrNoActiveSession
	}

	var row models.TransferredFile
	var found, busy, skip bool
	s.update(gen, func() {
		i := models.FindFile(s.files, fileID)
		if i < 0 {
			return
		}
		row, found = s.files[i], true
		if !row.Downloadable() {
			return
		}
		key := row.Key.ServerID
		switch {
		case s.downloading[key]:
			busy = true
		case auto && row.DownloadedByMe:
			skip = true
		default:
			s.downloading[key] = true
		}
	})
	if !found {
		if !auto {
			s.toast(toastFor("download", common.ErrFileNotFound))
		}
		return common.ErrFileNotFound
	}
	if !row.Downloadable() {
		s.info(row.Name + " is not ready yet.")
		return errNotReady
	}
	if busy || skip {
		return nil
	}

	key := row.Key.ServerID
	defer func() {
		s.mu.Lock()
		if gen == s.gen {
			delete(s.downloading, key)
		}
		s.mu.Unlock()
	}()

	log := s.logger.With("session_id", sid, "file_id", key)
	fail := func(err error) error {
		log.Warn(ctx, "download failed", "error", err)
		if s.isCurrent(gen) {
			s.toast(toastFor("download "+row.Name, err))
		}
		return err
	}

	url, err := s.api.DownloadURL(ctx, sid, key)
	if err != nil {
		return fail(err)
	}
	body, _, err := s.transfer.Download(ctx, url)
	if err != nil {
		return fail(err)
	}
	loc, err := s.sink.Save(ctx, row.Name, body)
	_ = body.Close()
	if err != nil {
		return fail(err)
	}

	if err := s.api.MarkDownloaded(ctx, sid, key); err != nil {
		log.Warn(ctx, "mark downloaded on server failed", "error", err)
	}
	if s.downloads != nil {
		if err := s.downloads.Mark(ctx, sid, key); err != nil {
			log.Warn(ctx, "remember download failed", "error", err)
		}
	}

	s.update(gen, func() {
		if i := models.FindFile(s.files, key); i >= 0 {
			s.files[i].DownloadedByMe = true
			s.files[i].Status = models.FileDownloaded
			row = s.files[i]
		}
	})

	log.Info(ctx, "file saved", "location", loc)
	s.bus.Emit(eventbus.FileDownloaded, row)
	s.success(fmt.Sprintf("Saved %s to %s", row.Name, loc))
	return nil
}

// DownloadAllFiles downloads every uploaded file not yet saved here, one at
// a time with DownloadDelay between them.
func (s *SessionService) DownloadAllFiles(ctx context.Context) error {
	_, gen, err := s.requireSession()
	if err != nil {
		return err
	}

	var ids []string
	s.update(gen, func() {
		meID := s.me.ID
		for _, f := range s.files {
			if f.Downloadable() && f.Status == models.FileUploaded && !f.DownloadedByMe &&
				f.UploaderID != meID && !isLocalUpload(f) {
				ids = append(ids, f.Key.ServerID)
			}
		}
	})
	if len(ids) == 0 {
		s.info("There are no new files to download.")
		return nil
	}

	var errs []error
	for i, id := range ids {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.DownloadDelay); err != nil {
				return err
			}
		}
		if !s.isCurrent(gen) {
			break
		}
		if err := s.download(ctx, id, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// scheduleAutoDownload starts a background pass over files waiting for
// auto-download. The pass stops when the session ends.
func (s *SessionService) scheduleAutoDownload(gen uint64) {
	var ids []string
	var ctx context.Context
	s.update(gen, func() {
		if !s.autoDownload {
			return
		}
		meID := s.me.ID
		for _, f := range s.files {
			if f.Downloadable() && f.Status == models.FileUploaded && !f.DownloadedByMe &&
				f.UploaderID != meID && !isLocalUpload(f) && !s.downloading[f.Key.ServerID] {
				ids = append(ids, f.Key.ServerID)
			}
		}
		ctx = s.sessCtx
	})
	if len(ids) == 0 {
		return
	}

	go func() {
		for _, id := range ids {
			if ctx.Err() != nil || !s.isCurrent(gen) {
				return
			}
			_ = s.download(ctx, id, true)
		}
	}()
}
