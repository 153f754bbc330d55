package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2015, 1, 1, 12, 30, 45, 0, time.UTC)

	tests := []struct {
		name  string
		value string
	}{
		{name: "listing form", value: "2015-01-01T12:30:45.000000Z"},
		{name: "listing form, millis", value: "2015-01-01T12:30:45.000Z"},
		{name: "header form", value: "Thu, 01 Jan 2015 12:30:45 GMT"},
		{name: "header form, UTC", value: "Thu, 01 Jan 2015 12:30:45 UTC"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTimestamp(tc.value)
			require.NoError(t, err)
			assert.True(t, got.Equal(want), "got %s, want %s", got, want)
		})
	}
}

func TestParseTimestamp_BothFormsAgree(t *testing.T) {
	iso, err := ParseTimestamp("2014-06-30T23:59:59.500000Z")
	require.NoError(t, err)
	header, err := ParseTimestamp("Mon, 30 Jun 2014 23:59:59 GMT")
	require.NoError(t, err)

	assert.True(t, iso.Truncate(time.Second).Equal(header))
}

func TestParseTimestamp_Unrecognized(t *testing.T) {
	for _, value := range []string{
		"", "yesterday", "2015/01/01 00:00:00", "1420070400",
		"Thu, 01 Jan 2015 12:30:45 EST",
		"Thu, 01 Jan 2015 12:30:45 PST",
		"Thu, 01 Jan 2015 12:30:45 XYZ",
	} {
		_, err := ParseTimestamp(value)
		require.Error(t, err, "value %q", value)

		var tsErr *TimestampError
		require.True(t, errors.As(err, &tsErr))
		assert.Equal(t, value, tsErr.Value)
		assert.NotEmpty(t, tsErr.Layouts)
	}
}

func TestFormatTimestamp_RoundTrip(t *testing.T) {
	in := time.Date(2019, 3, 4, 5, 6, 7, 123456000, time.FixedZone("EST", -5*3600))
	out, err := ParseTimestamp(FormatTimestamp(in))
	require.NoError(t, err)
	assert.True(t, in.Equal(out))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "a/b/c", Join("a", "b", "c"))
	assert.Equal(t, "a/b/c", Join("a/", "/b/", "/c"))
	assert.Equal(t, "a/b/", Join("a", "b/"))
	assert.Equal(t, "dev/repodata", Join("/dev", "repodata"))
	assert.Equal(t, "dev/pkg.rpm", Join("dev", "", "pkg.rpm"))
}

func TestIsFolderMarker(t *testing.T) {
	assert.True(t, IsFolderMarker("dev/repodata_$folder$"))
	assert.True(t, ObjectInfo{Key: "dev_$folder$"}.IsFolderMarker())
	assert.False(t, IsFolderMarker("dev/repodata/repomd.xml"))
	assert.False(t, IsFolderMarker("dev/folder.rpm"))
}

func TestNormalizeETag(t *testing.T) {
	assert.Equal(t, "abc123", NormalizeETag(`"abc123"`))
	assert.Equal(t, "abc123", NormalizeETag("abc123"))
}

func TestError(t *testing.T) {
	err := &Error{Op: "get", Bucket: "b", Key: "k", Err: ErrObjectNotFound}
	assert.Equal(t, "s3.get b/k: s3: object not found", err.Error())
	assert.True(t, errors.Is(err, ErrObjectNotFound))

	assert.Equal(t, "s3.list bucket b: boom", (&Error{Op: "list", Bucket: "b", Err: errors.New("boom")}).Error())
	assert.Equal(t, "s3.put object k: boom", (&Error{Op: "put", Key: "k", Err: errors.New("boom")}).Error())
	assert.Equal(t, "s3.connect: boom", (&Error{Op: "connect", Err: errors.New("boom")}).Error())
}
