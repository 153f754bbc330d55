// Package sync decides which files move between the working directory and
// the store, and moves them.
package sync

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/nytimes/s3yum/internal/store"
)

// RemoteObject is a listing entry with its timestamp parsed.
type RemoteObject struct {
	Key          string
	Size         int64
	LastModified time.Time
	Checksum     string
}

// NewRemoteObject converts a store listing entry.
func NewRemoteObject(info store.ObjectInfo) (RemoteObject, error) {
	modified, err := store.ParseTimestamp(info.LastModified)
	if err != nil {
		return RemoteObject{}, fmt.Errorf("object %s: %w", info.Key, err)
	}
	return RemoteObject{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: modified,
		Checksum:     store.NormalizeETag(info.ETag),
	}, nil
}

// IsFolderMarker reports whether the object is a directory placeholder.
func (r RemoteObject) IsFolderMarker() bool {
	return store.IsFolderMarker(r.Key)
}

// Action is what a Decision asks for.
type Action string

const (
	ActionDownload Action = "download"
	ActionUpload   Action = "upload"
	ActionSkip     Action = "skip"
)

// Decision is the outcome for a single file.
type Decision struct {
	Action Action
	Reason string
}

// Transfer reports whether the decision moves bytes.
func (d Decision) Transfer() bool {
	return d.Action == ActionDownload || d.Action == ActionUpload
}

// DecideDownload decides whether remote should be fetched to localPath.
//
// A download happens when forced, when the local file is missing, or when
// the checksums differ and the remote copy is at least as new as the local
// one. Equal timestamps transfer.
func DecideDownload(remote RemoteObject, localPath string, force bool) (Decision, error) {
	if force {
		return Decision{Action: ActionDownload, Reason: "forced"}, nil
	}

	info, err := os.Stat(localPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Decision{Action: ActionDownload, Reason: "missing locally"}, nil
	}
	if err != nil {
		return Decision{}, err
	}

	sum, err := fileMD5(localPath)
	if err != nil {
		return Decision{}, err
	}
	if sum == remote.Checksum {
		return Decision{Action: ActionSkip, Reason: "checksum matches"}, nil
	}
	if remote.LastModified.Before(info.ModTime()) {
		return Decision{Action: ActionSkip, Reason: "local copy is newer"}, nil
	}
	return Decision{Action: ActionDownload, Reason: "checksum differs, remote is newer"}, nil
}

// DecideUpload decides whether localPath should be written over remote.
// A nil remote means no object with that name exists.
//
// An upload happens when forced, when the remote object is missing, or
// when the checksums differ and the local file is at least as new as the
// remote one. Equal timestamps transfer.
func DecideUpload(localPath string, remote *RemoteObject, force bool) (Decision, error) {
	if force {
		return Decision{Action: ActionUpload, Reason: "forced"}, nil
	}
	if remote == nil {
		return Decision{Action: ActionUpload, Reason: "missing remotely"}, nil
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return Decision{}, err
	}

	sum, err := fileMD5(localPath)
	if err != nil {
		return Decision{}, err
	}
	if sum == remote.Checksum {
		return Decision{Action: ActionSkip, Reason: "checksum matches"}, nil
	}
	if info.ModTime().Before(remote.LastModified) {
		return Decision{Action: ActionSkip, Reason: "remote copy is newer"}, nil
	}
	return Decision{Action: ActionUpload, Reason: "checksum differs, local is newer"}, nil
}

// ShouldDownload is DecideDownload reduced to a yes or no.
func ShouldDownload(remote RemoteObject, localPath string, force bool) (bool, error) {
	d, err := DecideDownload(remote, localPath, force)
	if err != nil {
		return false, err
	}
	return d.Transfer(), nil
}

// ShouldUpload is DecideUpload reduced to a yes or no.
func ShouldUpload(localPath string, remote *RemoteObject, force bool) (bool, error) {
	d, err := DecideUpload(localPath, remote, force)
	if err != nil {
		return false, err
	}
	return d.Transfer(), nil
}

// fileMD5 computes the hex MD5 of a file, the form S3 uses for ETags of
// single-part uploads.
func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
