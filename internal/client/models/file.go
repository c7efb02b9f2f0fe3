package models

import "time"

// FileStatus is the lifecycle state of a transferred file.
type FileStatus string

const (
	FileUploading  FileStatus = "uploading"
	FileUploaded   FileStatus = "uploaded"
	FileDownloaded FileStatus = "downloaded"
	FileError      FileStatus = "error"
)

// FileKey identifies a file row. ClientID is set for rows created locally,
// ServerID once the server has recorded the object.
type FileKey struct {
	ClientID string
	ServerID string
}

// Pending reports whether the server has not yet acknowledged the row.
func (k FileKey) Pending() bool {
	return k.ServerID == ""
}

// ID is the canonical identifier: the server id when known, the client id otherwise.
func (k FileKey) ID() string {
	if k.ServerID != "" {
		return k.ServerID
	}
	return k.ClientID
}

// TransferredFile is one file moving through a session.
type TransferredFile struct {
	Key            FileKey
	Name           string
	Size           int64
	ContentType    string
	UploaderID     string
	Status         FileStatus
	Progress       int
	DownloadedByMe bool
	SeenByPeer     bool
	CreatedAt      time.Time
}

// Downloadable reports whether the file is stored on the server.
func (f TransferredFile) Downloadable() bool {
	return !f.Key.Pending() && (f.Status == FileUploaded || f.Status == FileDownloaded)
}

// SetProgress applies an upload progress value; progress never goes back.
func (f *TransferredFile) SetProgress(p int) {
	if p > 100 {
		p = 100
	}
	if p > f.Progress {
		f.Progress = p
	}
}

// FindFile returns the index of the row whose canonical id, server id or
// client id equals id, or -1.
func FindFile(rows []TransferredFile, id string) int {
	for i, r := range rows {
		if r.Key.ServerID == id || (r.Key.ClientID != "" && r.Key.ClientID == id) {
			return i
		}
	}
	return -1
}

// MergeFile reconciles a server-reported file onto rows and returns the
// updated slice and the index of the affected row.
//
// Matching order: same server id; then an in-flight local upload with the
// same name and size from the same uploader; otherwise the file is appended.
// A peer's file never adopts our upload, even with the same name and size.
func MergeFile(rows []TransferredFile, in TransferredFile) ([]TransferredFile, int) {
	for i := range rows {
		if rows[i].Key.ServerID != "" && rows[i].Key.ServerID == in.Key.ServerID {
			rows[i] = mergeFileRow(rows[i], in)
			return rows, i
		}
	}

	for i := range rows {
		r := rows[i]
		if r.Key.Pending() && r.Status == FileUploading && r.Name == in.Name && r.Size == in.Size &&
			(in.UploaderID == "" || in.UploaderID == r.UploaderID) {
			rows[i] = mergeFileRow(r, in)
			return rows, i
		}
	}

	if in.Status == "" {
		in.Status = FileUploaded
	}
	if in.Status == FileUploaded || in.Status == FileDownloaded {
		in.Progress = 100
	}
	return append(rows, in), len(rows)
}

func mergeFileRow(cur, in TransferredFile) TransferredFile {
	cur.Key.ServerID = in.Key.ServerID
	if cur.Key.ClientID == "" {
		cur.Key.ClientID = in.Key.ClientID
	}
	if cur.UploaderID == "" {
		cur.UploaderID = in.UploaderID
	}
	if cur.ContentType == "" {
		cur.ContentType = in.ContentType
	}
	if cur.CreatedAt.IsZero() {
		cur.CreatedAt = in.CreatedAt
	}
	cur.DownloadedByMe = cur.DownloadedByMe || in.DownloadedByMe
	cur.SeenByPeer = cur.SeenByPeer || in.SeenByPeer

	switch {
	case cur.DownloadedByMe:
		cur.Status = FileDownloaded
	case cur.Status == FileUploading || cur.Status == FileError || cur.Status == "":
		cur.Status = FileUploaded
	}
	cur.Progress = 100
	return cur
}
