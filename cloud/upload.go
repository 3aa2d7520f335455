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
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
)

// Uploader redirects outputs destined for blob storage to local files
// and uploads them once they have been written.
type Uploader struct {
	// files is a set of file path pairs. The first of each pair
	// is a local file path and the second is a blob storage
	// path where it should be uploaded to.
	files [][2]string
	dir   string

	Log logrus.FieldLogger
}

// MaybeUpload checks whether the given output path refers to a blob
// storage location. If it does, a local path is returned and the file
// written there is uploaded to path by Upload. Otherwise path is
// returned unchanged.
func (u *Uploader) MaybeUpload(path string) (string, error) {
	if !IsBlob(path) {
		return path, nil
	}
	if u.dir == "" {
		dir, err := os.MkdirTemp("", "nppmap")
		if err != nil {
			return "", fmt.Errorf("cloud: creating upload directory: %v", err)
		}
		u.dir = dir
	}
	// Each output gets its own directory so outputs with the same
	// base name do not collide.
	dir := filepath.Join(u.dir, fmt.Sprint(len(u.files)))
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("cloud: creating upload directory: %v", err)
	}
	local := filepath.Join(dir, filepath.Base(path))
	u.files = append(u.files, [2]string{local, path})
	return local, nil
}

// Upload uploads every file registered with MaybeUpload. Files that
// were never written are skipped.
func (u *Uploader) Upload(ctx context.Context) error {
	for _, files := range u.files {
		if _, err := os.Stat(files[0]); os.IsNotExist(err) {
			continue
		}
		if err := uploadFile(ctx, files[0], files[1]); err != nil {
			return err
		}
		if u.Log != nil {
			u.Log.WithField("path", files[1]).Info("uploaded output file")
		}
	}
	return nil
}

// Close removes the local copies of the outputs. It should only be
// called once Upload has succeeded.
func (u *Uploader) Close() error {
	if u.dir == "" {
		return nil
	}
	err := os.RemoveAll(u.dir)
	u.dir, u.files = "", nil
	if err != nil {
		return fmt.Errorf("cloud: removing upload directory: %v", err)
	}
	return nil
}

func uploadFile(ctx context.Context, local, dst string) error {
	r, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("cloud: opening file '%s' for upload: %v", local, err)
	}
	defer r.Close()
	bucketName, key, err := splitBlob(dst)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("cloud: opening bucket to upload file '%s': %v", dst, err)
	}
	defer bucket.Close()
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cloud: opening writer to upload file '%s': %v", dst, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloud: uploading file '%s' to '%s': %v", local, dst, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("cloud: uploading file '%s' to '%s': %v", local, dst, err)
	}
	return nil
}
