// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package chatroom

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/classmesh-foundation/classmesh/lib/codec"
)

// Archives are zstd-compressed CBOR snapshots of a finished session,
// what the UI layer writes to disk. The encoder and decoder are
// reused across calls; both are safe for concurrent use.
var (
	archiveEncoder *zstd.Encoder
	archiveDecoder *zstd.Decoder
)

func init() {
	var err error
	archiveEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("chatroom: zstd encoder initialization failed: " + err.Error())
	}
	archiveDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("chatroom: zstd decoder initialization failed: " + err.Error())
	}
}

// ExportArchive writes the session as a compressed snapshot.
func ExportArchive(w io.Writer, session *Session) error {
	raw, err := codec.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", session.ID, err)
	}
	if _, err := w.Write(archiveEncoder.EncodeAll(raw, nil)); err != nil {
		return fmt.Errorf("writing session archive: %w", err)
	}
	return nil
}

// ReadArchive reads a snapshot written by ExportArchive.
func ReadArchive(r io.Reader) (*Session, error) {
	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading session archive: %w", err)
	}
	raw, err := archiveDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing session archive: %w", err)
	}
	var session Session
	if err := codec.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decoding session archive: %w", err)
	}
	return &session, nil
}
