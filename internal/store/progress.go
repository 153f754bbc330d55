package store

import "io"

// progressReader reports cumulative bytes read to a ProgressFunc.
type progressReader struct {
	reader   io.Reader
	progress ProgressFunc
	total    int64
	read     int64
}

func newProgressReader(r io.Reader, total int64, progress ProgressFunc) io.Reader {
	if progress == nil {
		return r
	}
	return &progressReader{reader: r, progress: progress, total: total}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.progress(pr.read, pr.total)
	}
	return n, err
}
