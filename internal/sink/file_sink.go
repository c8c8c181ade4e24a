// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sink

import (
	"bufio"
	"context"
	"fmt"
	"os"
)

// FileSink appends aggregate rows to a TSV file through a buffered
// writer. Call Close when done.
type FileSink struct {
	f *os.File
	w *bufio.Writer
}

// NewFileSink opens (or creates) the file at path in append mode.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: f, w: bufio.NewWriterSize(f, 1<<20 /*1MiB*/)}, nil
}

func (s *FileSink) WriteRows(_ context.Context, rows []Row) error {
	for _, r := range rows {
		if _, err := fmt.Fprintf(s.w, "%s\t%d\n", r.Key, r.Value); err != nil {
			return fmt.Errorf("write row %q: %w", r.Key, err)
		}
	}
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
