package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/lazydrop/internal/client/channel"
	"github.com/dmitrijs2005/lazydrop/internal/client/client"
	"github.com/dmitrijs2005/lazydrop/internal/client/eventbus"
	"github.com/dmitrijs2005/lazydrop/internal/client/models"
	"github.com/dmitrijs2005/lazydrop/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessFiles_Oversized(t *testing.T) {
	h := newHarness(t, withMaxFileSize(100<<20))
	h.join(t)

	err := h.svc.ProcessFiles(context.Background(), []Source{memSource("movie.mkv", 150<<20)})

	require.ErrorIs(t, err, common.ErrFileTooLarge)
	assert.Empty(t, h.svc.Files())
	assert.Zero(t, h.api.count("RequestUploadURL"))
	toasts := h.toasts.all()
	require.Len(t, toasts, 1)
	assert.Equal(t, models.SeverityError, toasts[0].Severity)
	assert.Contains(t, toasts[0].Message, "movie.mkv")
	assert.Contains(t, toasts[0].Message, "100 MiB")
}

func TestProcessFiles_OversizedDoesNotStopTheBatch(t *testing.T) {
	h := newHarness(t, withMaxFileSize(1<<20))
	h.join(t)

	err := h.svc.ProcessFiles(context.Background(), []Source{
		memSource("big.iso", 2<<20),
		memSource("small.txt", 10),
	})

	require.ErrorIs(t, err, common.ErrFileTooLarge)
	require.Len(t, h.svc.Files(), 1)
	f, ok := h.fileByName("small.txt")
	require.True(t, ok)
	assert.Equal(t, models.FileUploaded, f.Status)
	assert.Len(t, h.toasts.of(models.SeverityError), 1)
}

func TestProcessFiles_Success(t *testing.T) {
	h := newHarness(t)
	h.join(t)
	uploaded := record(h.svc.Bus(), eventbus.FileUploaded)

	require.NoError(t, h.svc.ProcessFiles(context.Background(), []Source{memSource("a.txt", 10)}))

	f, ok := h.fileByName("a.txt")
	require.True(t, ok)
	assert.Equal(t, models.FileUploaded, f.Status)
	assert.Equal(t, 100, f.Progress)
	assert.Equal(t, "f-1", f.Key.ServerID)
	assert.Equal(t, meID, f.UploaderID)
	assert.Len(t, uploaded.all(), 1)
	assert.Len(t, h.toasts.of(models.SeveritySuccess), 1)
}

func TestProcessFiles_FaultIsolation(t *testing.T) {
	h := newHarness(t)
	h.join(t)
	h.api.setErr("RequestUploadURL:a.txt", client.ErrUnavailable)
	h.tr.uploadErr["https://storage.test/put/b.txt"] = errors.New("upload failed: 500")

	err := h.svc.ProcessFiles(context.Background(), []Source{
		memSource("a.txt", 10),
		memSource("b.txt", 20),
		memSource("c.txt", 30),
	})

	require.Error(t, err)
	want := map[string]models.FileStatus{
		"a.txt": models.FileError,
		"b.txt": models.FileError,
		"c.txt": models.FileUploaded,
	}
	for name, status := range want {
		f, ok := h.fileByName(name)
		require.True(t, ok, name)
		assert.Equal(t, status, f.Status, name)
	}
	for _, f := range h.svc.Files() {
		assert.NotEqual(t, models.FileUploading, f.Status)
	}
	assert.Len(t, h.toasts.of(models.SeverityError), 2)
}

func TestProcessFiles_ConfirmFailure(t *testing.T) {
	h := newHarness(t)
	h.join(t)
	h.api.setErr("ConfirmUpload", &client.APIError{Status: 429, Message: "daily upload quota exceeded"})

	require.Error(t, h.svc.ProcessFiles(context.Background(), []Source{memSource("a.txt", 10)}))

	f, ok := h.fileByName("a.txt")
	require.True(t, ok)
	assert.Equal(t, models.FileError, f.Status)
	assert.True(t, f.Key.Pending())
	errs := h.toasts.of(models.SeverityError)
	require.Len(t, errs, 1)
	assert.Equal(t, RoutePricing, errs[0].Action.Navigate)
}

func TestProcessFiles_OpenFailure(t *testing.T) {
	h := newHarness(t)
	h.join(t)
	src := memSource("gone.txt", 10)
	src.Open = func() (io.ReadCloser, error) { return nil, os.ErrNotExist }

	require.Error(t, h.svc.ProcessFiles(context.Background(), []Source{src}))

	f, ok := h.fileByName("gone.txt")
	require.True(t, ok)
	assert.Equal(t, models.FileError, f.Status)
}

func TestProcessFiles_NoSession(t *testing.T) {
	h := newHarness(t)

	err := h.svc.ProcessFiles(context.Background(), []Source{memSource("a.txt", 1)})

	require.ErrorIs(t, err, common.ErrNoActiveSession)
	assert.Len(t, h.toasts.of(models.SeverityError), 1)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))

	src, err := FileSource(path)
	require.NoError(t, err)
	assert.Equal(t, "photo.png", src.Name)
	assert.EqualValues(t, 3, src.Size)
	assert.Equal(t, "image/png", src.ContentType)

	rc, err := src.Open()
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	_, err = FileSource(dir)
	require.Error(t, err)
	_, err = FileSource(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestFileConvergence_RESTThenEvent(t *testing.T) {
	h := newHarness(t)
	h.api.files = []client.FileDTO{peerFile("f-9", "report.pdf", 2048)}
	h.join(t)

	h.ch.emit(t, channel.FileUploaded, peerFile("f-9", "report.pdf", 2048))

	require.Len(t, h.svc.Files(), 1)
	assert.Equal(t, "f-9", h.svc.Files()[0].Key.ServerID)
}

func TestFileConvergence_LocalUploadThenEcho(t *testing.T) {
	h := newHarness(t)
	h.join(t)
	require.NoError(t, h.svc.ProcessFiles(context.Background(), []Source{memSource("a.txt", 10)}))

	echo := client.FileDTO{ID: "f-1", FileName: "a.txt", FileSize: 10, UploaderParticipantID: meID}
	h.ch.emit(t, channel.FileUploaded, echo)

	require.Len(t, h.svc.Files(), 1)
	assert.Equal(t, models.FileUploaded, h.svc.Files()[0].Status)
	assert.Empty(t, h.toasts.of(models.SeverityInfo))
}

func TestFileConvergence_PeerFileWithSameNameDuringUpload(t *testing.T) {
	h := newHarness(t)
	h.join(t)

	src := memSource("a.txt", 10)
	open := src.Open
	src.Open = func() (io.ReadCloser, error) {
		h.ch.emit(t, channel.FileUploaded, peerFile("f-peer", "a.txt", 10))
		return open()
	}
	require.NoError(t, h.svc.ProcessFiles(context.Background(), []Source{src}))

	files := h.svc.Files()
	require.Len(t, files, 2)
	var mine, theirs models.TransferredFile
	for _, f := range files {
		if f.UploaderID == peerID {
			theirs = f
		} else {
			mine = f
		}
	}
	assert.Equal(t, "f-peer", theirs.Key.ServerID)
	assert.Equal(t, models.FileUploaded, theirs.Status)
	assert.Equal(t, "f-1", mine.Key.ServerID)
	assert.Equal(t, meID, mine.UploaderID)

	infos := h.toasts.of(models.SeverityInfo)
	require.NotEmpty(t, infos)
	assert.Equal(t, "New file: a.txt", infos[0].Message)
}

func TestPeerUploadShowsToast(t *testing.T) {
	h := newHarness(t)
	h.join(t)

	h.ch.emit(t, channel.FileUploaded, peerFile("f-3", "notes.md", 12))

	require.Len(t, h.svc.Files(), 1)
	infos := h.toasts.of(models.SeverityInfo)
	require.Len(t, infos, 1)
	assert.Equal(t, "New file: notes.md", infos[0].Message)
	assert.Zero(t, h.tr.downloadCount("f-3"))
}

func TestAutoDownload_ExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.api.settings.AutoDownload = true
	h.join(t)
	require.True(t, h.svc.AutoDownload())

	gate := make(chan struct{})
	h.tr.gate = gate
	dto := peerFile("f-7", "photo.jpg", 100)
	h.ch.emit(t, channel.FileUploaded, dto)
	h.ch.emit(t, channel.FileUploaded, dto)
	close(gate)

	require.Eventually(t, func() bool {
		f, ok := h.fileByName("photo.jpg")
		return ok && f.DownloadedByMe
	}, time.Second, 5*time.Millisecond)

	h.ch.emit(t, channel.FileUploaded, dto)
	require.Never(t, func() bool {
		return h.tr.downloadCount("f-7") > 1 || h.api.count("MarkDownloaded") > 1
	}, 100*time.Millisecond, 10*time.Millisecond)

	assert.Equal(t, 1, h.tr.downloadCount("f-7"))
	assert.Equal(t, 1, h.sink.count())
}

func TestAutoDownload_SkipsOwnUploads(t *testing.T) {
	h := newHarness(t)
	h.api.settings.AutoDownload = true
	h.join(t)

	require.NoError(t, h.svc.ProcessFiles(context.Background(), []Source{memSource("mine.txt", 5)}))
	h.ch.emit(t, channel.FileUploaded, client.FileDTO{ID: "f-1", FileName: "mine.txt", FileSize: 5, UploaderParticipantID: meID})

	require.Never(t, func() bool { return h.tr.downloadCount("f-1") > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestAutoDownload_SilentAfterSessionEnds(t *testing.T) {
	h := newHarness(t)
	h.api.files = []client.FileDTO{peerFile("f-1", "a.txt", 1)}
	h.join(t)
	require.NoError(t, h.svc.LeaveRoom(context.Background()))
	h.toasts.reset()

	err := h.svc.download(context.Background(), "f-1", true)

	require.ErrorIs(t, err, common.ErrNoActiveSession)
	assert.Empty(t, h.toasts.all())
	assert.Zero(t, h.tr.downloadCount("f-1"))

	err = h.svc.DownloadFile(context.Background(), "f-1")
	require.ErrorIs(t, err, common.ErrNoActiveSession)
	assert.Len(t, h.toasts.of(models.SeverityError), 1)
}

func TestAutoDownload_StopsWhenSessionTornDown(t *testing.T) {
	h := newHarness(t)
	h.api.settings.AutoDownload = true
	h.join(t)

	gate := make(chan struct{})
	h.tr.gate = gate
	h.ch.emit(t, channel.FileUploaded, peerFile("f-1", "a.txt", 1))
	h.ch.emit(t, channel.FileUploaded, peerFile("f-2", "b.txt", 1))
	require.Eventually(t, func() bool { return h.tr.downloadCount("f-1") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.svc.LeaveRoom(context.Background()))
	h.toasts.reset()
	close(gate)

	require.Never(t, func() bool {
		for _, ts := range h.toasts.all() {
			if ts.Severity == models.SeverityError {
				return true
			}
		}
		return false
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.Zero(t, h.sink.count())
}

func TestSetAutoDownload_FetchesWaitingFiles(t *testing.T) {
	h := newHarness(t)
	h.api.files = []client.FileDTO{peerFile("f-1", "a.txt", 1), peerFile("f-2", "b.txt", 1)}
	h.join(t)
	require.False(t, h.svc.AutoDownload())

	require.NoError(t, h.svc.SetAutoDownload(context.Background(), true))

	assert.True(t, h.api.settings.AutoDownload)
	require.Eventually(t, func() bool { return h.sink.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDownloadFile(t *testing.T) {
	h := newHarness(t, withRepos())
	h.api.files = []client.FileDTO{peerFile("f-1", "a.txt", 1)}
	h.join(t)
	ctx := context.Background()

	require.NoError(t, h.svc.DownloadFile(ctx, "f-1"))

	f, _ := h.fileByName("a.txt")
	assert.True(t, f.DownloadedByMe)
	assert.Equal(t, models.FileDownloaded, f.Status)
	assert.Equal(t, []string{"f-1"}, h.api.marked)
	assert.Equal(t, "content of https://storage.test/get/f-1", string(h.sink.saved["a.txt"]))
	ok := h.toasts.of(models.SeveritySuccess)
	require.Len(t, ok, 1)
	assert.Equal(t, "Saved a.txt to mem://a.txt", ok[0].Message)

	ids, err := h.repos.Downloads.ListBySession(ctx, testSessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"f-1"}, ids)
}

func TestDownloadFile_RememberedAcrossRejoin(t *testing.T) {
	h := newHarness(t, withRepos())
	h.api.files = []client.FileDTO{peerFile("f-1", "a.txt", 1)}
	h.join(t)
	ctx := context.Background()
	require.NoError(t, h.svc.DownloadFile(ctx, "f-1"))

	h.svc.Close()
	require.NoError(t, h.svc.Rehydrate(ctx))

	f, ok := h.fileByName("a.txt")
	require.True(t, ok)
	assert.True(t, f.DownloadedByMe)
}

func TestDownloadFile_FailureDoesNotMark(t *testing.T) {
	h := newHarness(t)
	h.api.files = []client.FileDTO{peerFile("f-1", "a.txt", 1)}
	h.join(t)
	ctx := context.Background()
	h.tr.dlErr = errors.New("download failed: 403 Forbidden")

	require.Error(t, h.svc.DownloadFile(ctx, "f-1"))

	f, _ := h.fileByName("a.txt")
	assert.False(t, f.DownloadedByMe)
	assert.Equal(t, models.FileUploaded, f.Status)
	assert.Zero(t, h.api.count("MarkDownloaded"))
	assert.Len(t, h.toasts.of(models.SeverityError), 1)

	h.tr.dlErr = nil
	require.NoError(t, h.svc.DownloadFile(ctx, "f-1"))
	f, _ = h.fileByName("a.txt")
	assert.True(t, f.DownloadedByMe)
}

func TestDownloadFile_SinkFailure(t *testing.T) {
	h := newHarness(t)
	h.api.files = []client.FileDTO{peerFile("f-1", "a.txt", 1)}
	h.join(t)
	h.sink.err = errors.New("disk full")

	require.Error(t, h.svc.DownloadFile(context.Background(), "f-1"))

	f, _ := h.fileByName("a.txt")
	assert.False(t, f.DownloadedByMe)
	assert.Zero(t, h.api.count("MarkDownloaded"))
}

func TestDownloadFile_MarkFailureStillSaves(t *testing.T) {
	h := newHarness(t)
	h.api.files = []client.FileDTO{peerFile("f-1", "a.txt", 1)}
	h.join(t)
	h.api.setErr("MarkDownloaded", client.ErrUnavailable)

	require.NoError(t, h.svc.DownloadFile(context.Background(), "f-1"))

	f, _ := h.fileByName("a.txt")
	assert.True(t, f.DownloadedByMe)
}

func TestDownloadFile_Unknown(t *testing.T) {
	h := newHarness(t)
	h.join(t)

	require.ErrorIs(t, h.svc.DownloadFile(context.Background(), "nope"), common.ErrFileNotFound)
	assert.Len(t, h.toasts.of(models.SeverityError), 1)
}

func TestDownloadAllFiles(t *testing.T) {
	h := newHarness(t)
	done := peerFile("f-2", "b.txt", 1)
	done.DownloadedByMe = true
	mine := client.FileDTO{ID: "f-4", FileName: "mine.txt", FileSize: 1, UploaderParticipantID: meID}
	h.api.files = []client.FileDTO{peerFile("f-1", "a.txt", 1), done, peerFile("f-3", "c.txt", 1), mine}
	h.join(t)

	var slept int
	h.svc.sleep = func(ctx context.Context, d time.Duration) error {
		slept++
		assert.Equal(t, DefaultDownloadDelay, d)
		return nil
	}

	require.NoError(t, h.svc.DownloadAllFiles(context.Background()))

	assert.Equal(t, 1, h.tr.downloadCount("f-1"))
	assert.Zero(t, h.tr.downloadCount("f-2"))
	assert.Equal(t, 1, h.tr.downloadCount("f-3"))
	assert.Zero(t, h.tr.downloadCount("f-4"))
	assert.Equal(t, 1, slept)
	assert.Equal(t, 2, h.sink.count())
}

func TestDownloadAllFiles_NothingToDo(t *testing.T) {
	h := newHarness(t)
	h.join(t)

	require.NoError(t, h.svc.DownloadAllFiles(context.Background()))

	infos := h.toasts.of(models.SeverityInfo)
	require.Len(t, infos, 1)
	assert.Equal(t, "There are no new files to download.", infos[0].Message)
}

func TestFileDownloadedEvent(t *testing.T) {
	h := newHarness(t)
	h.join(t)
	require.NoError(t, h.svc.ProcessFiles(context.Background(), []Source{memSource("mine.txt", 5)}))

	h.ch.emit(t, channel.FileDownloaded, client.FileDownloadedEvent{FileID: "f-1", ParticipantID: peerID})

	f, _ := h.fileByName("mine.txt")
	assert.True(t, f.SeenByPeer)
	assert.False(t, f.DownloadedByMe)

	h.ch.emit(t, channel.FileDownloaded, client.FileDownloadedEvent{FileID: "f-1", ParticipantID: meID})
	f, _ = h.fileByName("mine.txt")
	assert.True(t, f.DownloadedByMe)
	assert.Equal(t, models.FileDownloaded, f.Status)
}

func TestFilesPurged(t *testing.T) {
	h := newHarness(t)
	h.api.files = []client.FileDTO{peerFile("f-1", "a.txt", 1)}
	h.join(t)
	purged := record(h.svc.Bus(), eventbus.FilesPurged)

	h.ch.emit(t, channel.FilesPurged, nil)

	assert.Empty(t, h.svc.Files())
	assert.Len(t, purged.all(), 1)
	assert.Equal(t, models.PhaseActive, h.svc.Phase())
}
