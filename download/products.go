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

package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Product identifies one band of an openEO collection.
type Product struct {
	Collection string
	Band       string
}

// Downloader saves one band of a collection over an extent on a date
// to a file. *Client implements it.
type Downloader interface {
	Download(ctx context.Context, collection, band string, extent Extent, date, path string) error
}

// ProductDownloader downloads every combination of products, tiles
// and dates.
type ProductDownloader struct {
	Products map[string]Product
	Tiles    map[string]Extent
	Dates    []string
	SavePath string
	Client   Downloader

	// MaxRetries is the number of times a download that failed with a
	// temporary error is retried.
	MaxRetries int

	// NewBackOff returns the retry schedule for one download. It
	// defaults to exponential back-off.
	NewBackOff func() backoff.BackOff

	Log logrus.FieldLogger
}

// Failure records a download that did not succeed.
type Failure struct {
	Product, Tile, Date string
	Err                 error
}

// Summary lists the files saved and the downloads that failed.
type Summary struct {
	Saved  []string
	Failed []Failure
}

// Filename returns the name of the file a product is saved to.
func Filename(product, tile, date string) string {
	return fmt.Sprintf("%s_%s_%s.tiff", product, tile, date)
}

// DownloadAll downloads every product for every tile and date into
// SavePath, continuing after failures. The only error returned is
// failure to create SavePath or cancellation of ctx.
func (d *ProductDownloader) DownloadAll(ctx context.Context) (*Summary, error) {
	if err := os.MkdirAll(d.SavePath, os.ModePerm); err != nil {
		return nil, fmt.Errorf("download: creating save directory: %v", err)
	}
	s := new(Summary)
	for _, product := range sortedKeys(d.Products) {
		info := d.Products[product]
		for _, tile := range sortedKeys(d.Tiles) {
			extent := d.Tiles[tile]
			for _, date := range d.Dates {
				if err := ctx.Err(); err != nil {
					return s, err
				}
				log := d.Log.WithFields(logrus.Fields{"product": product, "tile": tile, "date": date})
				path := filepath.Join(d.SavePath, Filename(product, tile, date))
				log.Info("downloading")
				if err := d.downloadOne(ctx, info, extent, date, path, log); err != nil {
					log.WithError(err).Error("download failed")
					s.Failed = append(s.Failed, Failure{Product: product, Tile: tile, Date: date, Err: err})
					continue
				}
				log.WithField("path", path).Info("saved")
				s.Saved = append(s.Saved, path)
			}
		}
	}
	return s, nil
}

func (d *ProductDownloader) downloadOne(ctx context.Context, p Product, extent Extent, date, path string, log logrus.FieldLogger) error {
	var b backoff.BackOff
	switch {
	case d.MaxRetries <= 0:
		b = &backoff.StopBackOff{}
	case d.NewBackOff != nil:
		b = backoff.WithMaxRetries(d.NewBackOff(), uint64(d.MaxRetries))
	default:
		b = backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(d.MaxRetries))
	}
	b = backoff.WithContext(b, ctx)
	return backoff.RetryNotify(
		func() error {
			err := d.Client.Download(ctx, p.Collection, p.Band, extent, date, path)
			if err != nil && !temporary(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		b,
		func(err error, wait time.Duration) {
			log.WithError(err).WithField("wait", wait).Warn("retrying download")
		},
	)
}

// temporary reports whether err may go away if the request is retried.
// Unsuccessful HTTP statuses are retried when the back end or token
// endpoint reports a server error or rate limit. Network failures are
// retried. Anything else, such as a local file error, is permanent.
func temporary(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.Response != nil &&
			(re.Response.StatusCode >= 500 || re.Response.StatusCode == http.StatusTooManyRequests)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
