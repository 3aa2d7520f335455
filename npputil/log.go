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

package npputil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/nppmap/cloud"
)

// newLogger returns a logger writing to w at the configured LogLevel.
// If LogFile is set, messages are also written to that file, which is
// uploaded by u if it is a blob storage location. The returned function
// closes the log file.
func newLogger(w io.Writer, cfg *viper.Viper, u *cloud.Uploader) (*logrus.Logger, func() error, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(cfg.GetString("LogLevel"))
	if err != nil {
		return nil, nil, fmt.Errorf("npputil: %v", err)
	}
	log.SetLevel(level)
	log.SetOutput(w)

	logFile := os.ExpandEnv(cfg.GetString("LogFile"))
	if logFile == "" {
		return log, func() error { return nil }, nil
	}
	path, err := u.MaybeUpload(logFile)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, nil, fmt.Errorf("npputil: problem creating log file directory: %v", err)
	}
	logfile, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("npputil: problem creating log file: %v", err)
	}
	log.SetOutput(io.MultiWriter(w, logfile))
	return log, logfile.Close, nil
}
