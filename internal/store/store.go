// Package store defines the object store boundary used by s3yum and its
// S3-backed implementation.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// FolderMarker is the key fragment some S3 tools use for empty directory
// placeholders. Such keys are listed but never transferred.
const FolderMarker = "_$folder$"

// Wire layouts for object timestamps, tried in order by ParseTimestamp.
const (
	// ISOLayout is the listing form, e.g. 2015-01-01T00:00:00.000000Z.
	// Parsing accepts any number of fractional digits.
	ISOLayout = "2006-01-02T15:04:05.000000Z"
	// HTTPLayout is the header form, e.g. Thu, 01 Jan 2015 00:00:00 GMT.
	HTTPLayout = "Mon, 02 Jan 2006 15:04:05 MST"
)

var timestampLayouts = []string{
	"2006-01-02T15:04:05Z",
	HTTPLayout,
}

// ObjectInfo is a single listing entry as reported by the store.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified string // one of ISOLayout or HTTPLayout
	ETag         string
}

// IsFolderMarker reports whether the entry is a synthetic directory placeholder.
func (o ObjectInfo) IsFolderMarker() bool {
	return IsFolderMarker(o.Key)
}

// IsFolderMarker reports whether key is a synthetic directory placeholder.
func IsFolderMarker(key string) bool {
	return strings.Contains(key, FolderMarker)
}

// ProgressFunc receives transfer progress. total is zero when unknown.
type ProgressFunc func(transferred, total int64)

// Store is the minimal set of object operations s3yum needs.
type Store interface {
	// List returns every object whose key starts with prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Get streams the object at key into w.
	Get(ctx context.Context, key string, w io.Writer, progress ProgressFunc) error
	// Put uploads the file at localPath to key.
	Put(ctx context.Context, key, localPath string, progress ProgressFunc) error
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
}

// TimestampError is returned when a timestamp matches none of the wire layouts.
type TimestampError struct {
	Value   string
	Layouts []string
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("unable to find a matching time format for %q (tried %s)",
		e.Value, strings.Join(e.Layouts, ", "))
}

// ParseTimestamp parses an object timestamp in either wire layout. The
// header form must be in GMT or UTC; time.Parse would otherwise read an
// unknown zone abbreviation as a zero offset.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if layout == HTTPLayout {
			name, offset := t.Zone()
			if offset != 0 || (name != "GMT" && name != "UTC") {
				continue
			}
		}
		return t, nil
	}
	return time.Time{}, &TimestampError{Value: value, Layouts: timestampLayouts}
}

// FormatTimestamp renders t in the listing layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

var repeatedSlashes = regexp.MustCompile(`/+`)

// Join assembles an object key. Repeated slashes collapse to one and a
// leading slash is dropped; a trailing slash is preserved.
func Join(parts ...string) string {
	key := repeatedSlashes.ReplaceAllString(strings.Join(parts, "/"), "/")
	return strings.TrimPrefix(key, "/")
}

// NormalizeETag strips the quotes S3 puts around ETag values.
func NormalizeETag(etag string) string {
	return strings.Trim(etag, `"`)
}

// Error describes a failed store operation.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Bucket != "" && e.Key != "":
		return fmt.Sprintf("s3.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("s3.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	case e.Key != "":
		return fmt.Sprintf("s3.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sentinel errors; match with errors.Is.
var (
	ErrObjectNotFound = errors.New("s3: object not found")
	ErrBucketNotFound = errors.New("s3: bucket not found")
	ErrAccessDenied   = errors.New("s3: access denied")
)
