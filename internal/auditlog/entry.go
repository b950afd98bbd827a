package auditlog

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"io"
	"time"
)

const CurrentVersion uint16 = 1

type EntryType string

const (
	EntryTypeGenesis EntryType = "GENESIS"
	EntryTypeCheck   EntryType = "CHECK"
)

// genesisPreviousHash anchors every chain.
var genesisPreviousHash = sha512.Sum512([]byte("fixity"))

// CheckDetails mirrors one checksum history row.
type CheckDetails struct {
	HistoryId      string
	BitstreamId    string
	Outcome        string
	ExpectedDigest string
	ObservedDigest string
	Algorithm      string
	Deleted        bool
	WindowStart    time.Time
	WindowEnd      time.Time
}

type Entry struct {
	Version      uint16
	Timestamp    time.Time
	Type         EntryType
	Check        *CheckDetails
	PreviousHash []byte // SHA512
	Hash         []byte // SHA512
	Signature    []byte // Ed25519, empty when the log is unsigned
}

func (e *Entry) CalculateHash() []byte {
	buf := new(bytes.Buffer)

	binary.Write(buf, binary.BigEndian, e.Version)
	binary.Write(buf, binary.BigEndian, e.Timestamp.UnixNano())
	writeString(buf, string(e.Type))

	if e.Check != nil {
		writeString(buf, e.Check.HistoryId)
		writeString(buf, e.Check.BitstreamId)
		writeString(buf, e.Check.Outcome)
		writeString(buf, e.Check.ExpectedDigest)
		writeString(buf, e.Check.ObservedDigest)
		writeString(buf, e.Check.Algorithm)
		binary.Write(buf, binary.BigEndian, e.Check.Deleted)
		binary.Write(buf, binary.BigEndian, e.Check.WindowStart.UnixNano())
		binary.Write(buf, binary.BigEndian, e.Check.WindowEnd.UnixNano())
	}

	buf.Write(e.PreviousHash)

	h := sha512.Sum512(buf.Bytes())
	return h[:]
}

// Seal computes the hash and, with a signer, signs it.
func (e *Entry) Seal(signer Signer) error {
	e.Hash = e.CalculateHash()
	if signer == nil {
		return nil
	}
	sig, err := signer.Sign(e.Hash)
	if err != nil {
		return err
	}
	e.Signature = sig
	return nil
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func writeBytes(w io.Writer, b []byte) error {
	l := uint32(len(b))
	if err := binary.Write(w, binary.BigEndian, l); err != nil {
		return err
	}
	if l > 0 {
		_, err := w.Write(b)
		return err
	}
	return nil
}
