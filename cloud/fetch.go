/*
Copyright © 2024 the NPPMap authors.
This file is part of NPPMap.

NPPMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

NPPMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with NPPMap.  If not, see <http://www.gnu.org/licenses/>.
*/

package cloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/nppmap/internal/hash"
)

// Fetcher makes remote input files available locally. Downloads are
// cached under Dir, in a subdirectory named after a hash of the remote
// path, so each remote file is only downloaded once.
type Fetcher struct {
	// Dir is the download cache directory. If empty, a temporary
	// directory is created on first use and removed by Close.
	Dir string

	// HTTP is the client used for HTTP downloads. If nil,
	// http.DefaultClient is used.
	HTTP *http.Client

	Log logrus.FieldLogger

	tmp string
}

// Fetch returns a local path for the file at path. Paths that exist
// locally or that are neither URLs nor blob paths are returned
// unchanged. For shapefiles, the associated .dbf, .shx and .prj files
// are downloaded too, and the path of the .shp file is returned.
func (f *Fetcher) Fetch(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	var get func(ctx context.Context, src string, w io.Writer) error
	switch {
	case IsURL(path):
		get = f.getHTTP
	case IsBlob(path):
		get = getBlob
	default:
		return path, nil
	}
	if f.Dir == "" {
		dir, err := os.MkdirTemp("", "nppmap")
		if err != nil {
			return "", fmt.Errorf("cloud: creating download directory: %v", err)
		}
		f.Dir, f.tmp = dir, dir
	}
	dir := filepath.Join(f.Dir, hash.Hash(path))
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("cloud: creating download directory: %v", err)
	}
	srcs := expandShp(path)
	for i, src := range srcs {
		dst := filepath.Join(dir, filepath.Base(src))
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := download(ctx, get, src, dst); err != nil {
			if i > 0 && filepath.Ext(src) == ".prj" {
				// Shapefiles without a projection file are assumed to
				// be in geographic coordinates.
				continue
			}
			return "", err
		}
		if f.Log != nil {
			f.Log.WithFields(logrus.Fields{"from": src, "to": dst}).Info("downloaded input file")
		}
	}
	return filepath.Join(dir, filepath.Base(srcs[0])), nil
}

// Close removes the download directory if Fetch created it. A
// configured Dir is left in place so it can be reused.
func (f *Fetcher) Close() error {
	if f.tmp == "" {
		return nil
	}
	err := os.RemoveAll(f.tmp)
	if f.Dir == f.tmp {
		f.Dir = ""
	}
	f.tmp = ""
	if err != nil {
		return fmt.Errorf("cloud: removing download directory: %v", err)
	}
	return nil
}

// download copies src to dst, removing dst if the copy fails.
func download(ctx context.Context, get func(context.Context, string, io.Writer) error, src, dst string) error {
	w, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("cloud: creating file for download: %v", err)
	}
	err = get(ctx, src, w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

func (f *Fetcher) getHTTP(ctx context.Context, src string, w io.Writer) error {
	c := f.HTTP
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fmt.Errorf("cloud: downloading %s: %v", src, err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("cloud: downloading %s: %v", src, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cloud: downloading %s: %s", src, resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("cloud: downloading %s: %v", src, err)
	}
	return nil
}

func getBlob(ctx context.Context, src string, w io.Writer) error {
	bucketName, key, err := splitBlob(src)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return err
	}
	defer bucket.Close()
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("cloud: reading blob %s: %v", src, err)
	}
	defer r.Close()
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("cloud: reading blob %s: %v", src, err)
	}
	return nil
}

// expandShp returns the given file + associated [.dbf, .shx, .prj]
// files if the given file has the .shp extension, and returns the given
// file otherwise.
func expandShp(filename string) []string {
	o := []string{filename}
	if filepath.Ext(filename) != ".shp" {
		return o
	}
	for _, newExt := range []string{".dbf", ".shx", ".prj"} {
		o = append(o, filename[0:len(filename)-4]+newExt)
	}
	return o
}
