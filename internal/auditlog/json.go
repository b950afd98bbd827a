package auditlog

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.999999999Z"

type jsonEntry struct {
	Version      uint16            `json:"version"`
	Timestamp    string            `json:"timestamp"`
	Type         string            `json:"type"`
	Check        *jsonCheckDetails `json:"check,omitempty"`
	PreviousHash string            `json:"previous_hash"`
	Hash         string            `json:"hash"`
	Signature    string            `json:"signature,omitempty"`
}

type jsonCheckDetails struct {
	HistoryId      string `json:"history_id"`
	BitstreamId    string `json:"bitstream_id"`
	Outcome        string `json:"outcome"`
	ExpectedDigest string `json:"expected_digest"`
	ObservedDigest string `json:"observed_digest"`
	Algorithm      string `json:"algorithm"`
	Deleted        bool   `json:"deleted"`
	WindowStart    string `json:"window_start"`
	WindowEnd      string `json:"window_end"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// EncodeEntry writes one entry as a single json line.
func EncodeEntry(w io.Writer, e *Entry) error {
	output := jsonEntry{
		Version:      e.Version,
		Timestamp:    formatTimestamp(e.Timestamp),
		Type:         string(e.Type),
		PreviousHash: hex.EncodeToString(e.PreviousHash),
		Hash:         hex.EncodeToString(e.Hash),
		Signature:    hex.EncodeToString(e.Signature),
	}
	if e.Check != nil {
		output.Check = &jsonCheckDetails{
			HistoryId:      e.Check.HistoryId,
			BitstreamId:    e.Check.BitstreamId,
			Outcome:        e.Check.Outcome,
			ExpectedDigest: e.Check.ExpectedDigest,
			ObservedDigest: e.Check.ObservedDigest,
			Algorithm:      e.Check.Algorithm,
			Deleted:        e.Check.Deleted,
			WindowStart:    formatTimestamp(e.Check.WindowStart),
			WindowEnd:      formatTimestamp(e.Check.WindowEnd),
		}
	}
	b, err := json.Marshal(output)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

type Decoder struct {
	scanner *bufio.Scanner
	line    int
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Decoder{scanner: scanner}
}

// Decode returns io.EOF after the last entry.
func (d *Decoder) Decode() (*Entry, error) {
	for d.scanner.Scan() {
		d.line++
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		entry, err := decodeLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", d.line, err)
		}
		return entry, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func decodeLine(line []byte) (*Entry, error) {
	var input jsonEntry
	err := json.Unmarshal(line, &input)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		Version: input.Version,
		Type:    EntryType(input.Type),
	}
	e.Timestamp, err = parseTimestamp(input.Timestamp)
	if err != nil {
		return nil, err
	}
	if e.PreviousHash, err = hex.DecodeString(input.PreviousHash); err != nil {
		return nil, err
	}
	if e.Hash, err = hex.DecodeString(input.Hash); err != nil {
		return nil, err
	}
	if e.Signature, err = hex.DecodeString(input.Signature); err != nil {
		return nil, err
	}
	if input.Check != nil {
		c := &CheckDetails{
			HistoryId:      input.Check.HistoryId,
			BitstreamId:    input.Check.BitstreamId,
			Outcome:        input.Check.Outcome,
			ExpectedDigest: input.Check.ExpectedDigest,
			ObservedDigest: input.Check.ObservedDigest,
			Algorithm:      input.Check.Algorithm,
			Deleted:        input.Check.Deleted,
		}
		if c.WindowStart, err = parseTimestamp(input.Check.WindowStart); err != nil {
			return nil, err
		}
		if c.WindowEnd, err = parseTimestamp(input.Check.WindowEnd); err != nil {
			return nil, err
		}
		e.Check = c
	}
	return e, nil
}
