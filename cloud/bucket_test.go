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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, contents := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFetchLocal(t *testing.T) {
	f := &Fetcher{Dir: t.TempDir()}
	for _, path := range []string{"/dev/null", "/blah/test/"} {
		k, err := f.Fetch(context.Background(), path)
		if err != nil {
			t.Fatal(err)
		}
		if k != path {
			t.Errorf("expected %s, got %s", path, k)
		}
	}
}

func TestFetchHTTP(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"table.csv":    "class,eps_max,T_min,T_max\n",
		"boundary.shp": "shp",
		"boundary.dbf": "dbf",
		"boundary.shx": "shx",
	})
	srv := httptest.NewServer(http.FileServer(http.Dir(src)))
	defer srv.Close()
	f := &Fetcher{Dir: t.TempDir(), HTTP: srv.Client(), Log: logrus.New()}

	csv, err := f.Fetch(context.Background(), srv.URL+"/table.csv")
	if err != nil {
		t.Fatal(err)
	}
	k := csv
	if !strings.HasPrefix(k, f.Dir) || filepath.Base(k) != "table.csv" {
		t.Errorf("unexpected download location %s", k)
	}
	b, err := os.ReadFile(k)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "class,eps_max,T_min,T_max\n" {
		t.Errorf("contents: %q", b)
	}

	k, err = f.Fetch(context.Background(), srv.URL+"/boundary.shp")
	if err != nil {
		t.Fatal(err)
	}
	for _, ext := range []string{".shp", ".dbf", ".shx"} {
		if _, err := os.Stat(strings.TrimSuffix(k, ".shp") + ext); err != nil {
			t.Errorf("missing %s: %v", ext, err)
		}
	}

	// Cached files are not downloaded again.
	k2, err := f.Fetch(context.Background(), srv.URL+"/table.csv")
	if err != nil || k2 != csv {
		t.Errorf("second fetch: %s, %v", k2, err)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.tif"); err == nil {
		t.Error("expected error for missing remote file")
	}
}

func TestFetchBlob(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"estk.tif": "tif"})
	f := &Fetcher{Dir: t.TempDir()}
	k, err := f.Fetch(context.Background(), "file://"+filepath.ToSlash(filepath.Join(src, "estk.tif")))
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(k)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "tif" {
		t.Errorf("contents: %q", b)
	}
}

func TestFetcherClose(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"estk.tif": "tif"})
	remote := "file://" + filepath.ToSlash(filepath.Join(src, "estk.tif"))

	f := new(Fetcher)
	k, err := f.Fetch(context.Background(), remote)
	if err != nil {
		t.Fatal(err)
	}
	tmp := f.Dir
	if tmp == "" || !strings.HasPrefix(k, tmp) {
		t.Fatalf("download %s not under temporary directory %q", k, tmp)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("temporary directory %s not removed", tmp)
	}
	if f.Dir != "" {
		t.Errorf("Dir still set to %s", f.Dir)
	}

	cache := t.TempDir()
	f = &Fetcher{Dir: cache}
	if k, err = f.Fetch(context.Background(), remote); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(k); err != nil {
		t.Errorf("configured cache was removed: %v", err)
	}
}

func TestUpload(t *testing.T) {
	dst := t.TempDir()
	u := &Uploader{Log: logrus.New()}
	local, err := u.MaybeUpload("/data/npp.tif")
	if err != nil || local != "/data/npp.tif" {
		t.Errorf("local path changed to %s (%v)", local, err)
	}
	remote := "file://" + filepath.ToSlash(filepath.Join(dst, "out", "npp.tif"))
	local, err = u.MaybeUpload(remote)
	if err != nil {
		t.Fatal(err)
	}
	if local == remote || filepath.Base(local) != "npp.tif" {
		t.Errorf("unexpected local path %s", local)
	}
	unwritten, err := u.MaybeUpload("file://" + filepath.ToSlash(filepath.Join(dst, "other.tif")))
	if err != nil {
		t.Fatal(err)
	}
	if unwritten == local {
		t.Error("outputs share a local path")
	}
	if err := os.WriteFile(local, []byte("npp"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := u.Upload(context.Background()); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dst, "out", "npp.tif"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "npp" {
		t.Errorf("uploaded contents: %q", b)
	}
	if _, err := os.Stat(filepath.Join(dst, "other.tif")); !os.IsNotExist(err) {
		t.Error("unwritten output was uploaded")
	}
	if err := u.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Error("local copy of uploaded output not removed")
	}
}

func TestIsBlob(t *testing.T) {
	for path, want := range map[string]bool{
		"gs://bucket/npp.tif": true,
		"s3://bucket/npp.tif": true,
		"file:///tmp/npp.tif": true,
		"https://x/npp.tif":   false,
		"/tmp/npp.tif":        false,
	} {
		if have := IsBlob(path); have != want {
			t.Errorf("IsBlob(%s) = %v, want %v", path, have, want)
		}
	}
}
