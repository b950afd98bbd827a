package checker

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jdillenkofer/fixity/internal/fixity"
	testutils "github.com/jdillenkofer/fixity/internal/testing"
	"github.com/stretchr/testify/assert"
)

func sampleReport() (*Report, fixity.BitstreamId, fixity.BitstreamId) {
	mismatch := fixity.NewRandomBitstreamId()
	missing := fixity.NewRandomBitstreamId()
	report := newReport(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	report.add(fixity.NewRandomBitstreamId(), fixity.ChecksumMatch)
	report.add(mismatch, fixity.ChecksumNoMatch)
	report.add(missing, fixity.BitstreamNotFound)
	report.End = report.Start.Add(90 * time.Second)
	report.State = Exhausted
	return report, mismatch, missing
}

func TestReportWriteText(t *testing.T) {
	testutils.SkipIfIntegration(t)
	report, mismatch, missing := sampleReport()

	var buf bytes.Buffer
	assert.Nil(t, report.WriteText(&buf))
	text := buf.String()
	assert.True(t, strings.HasPrefix(text, "Fixity check exhausted\n"))
	assert.Contains(t, text, "processed: 3")
	assert.Contains(t, text, "duration:  1m30s")
	assert.Contains(t, text, string(fixity.ChecksumNoMatch))
	assert.NotContains(t, text, string(fixity.BitstreamMarkedDeleted))
	assert.Contains(t, text, "Checksum mismatches:\n  "+mismatch.String())
	assert.Contains(t, text, "Bitstreams not found:\n  "+missing.String())
	assert.NotContains(t, text, "Error:")
}

func TestReportWriteJSON(t *testing.T) {
	testutils.SkipIfIntegration(t)
	report, mismatch, _ := sampleReport()
	report.Error = "boom"

	var buf bytes.Buffer
	assert.Nil(t, report.WriteJSON(&buf))
	var decoded map[string]any
	assert.Nil(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "EXHAUSTED", decoded["state"])
	assert.Equal(t, float64(3), decoded["processed"])
	assert.Equal(t, []any{mismatch.String()}, decoded["mismatches"])
	assert.Equal(t, float64(1), decoded["outcomes"].(map[string]any)["CHECKSUM_MATCH"])
	assert.Equal(t, "boom", decoded["error"])
}

func TestReportMerge(t *testing.T) {
	testutils.SkipIfIntegration(t)
	first, _, _ := sampleReport()
	second, mismatch, _ := sampleReport()
	second.Start = first.End.Add(time.Minute)
	second.End = second.Start.Add(time.Minute)

	total := &Report{}
	total.Merge(first)
	total.Merge(second)
	assert.Equal(t, first.Start, total.Start)
	assert.Equal(t, second.End, total.End)
	assert.Equal(t, 6, total.Processed)
	assert.Equal(t, 2, total.Outcomes[fixity.ChecksumMatch])
	assert.Len(t, total.Mismatches, 2)
	assert.Equal(t, mismatch, total.Mismatches[1])
}
