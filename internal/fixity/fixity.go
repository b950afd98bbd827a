package fixity

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

var ErrInvalidBitstreamId = errors.New("invalid bitstream id")

// BitstreamId identifies a stored bitstream. Ids order by their canonical string.
type BitstreamId struct {
	value ulid.ULID
}

func NewRandomBitstreamId() BitstreamId {
	return BitstreamId{value: ulid.Make()}
}

func NewBitstreamIdFromString(s string) (*BitstreamId, error) {
	ulidValue, err := ulid.ParseStrict(s)
	if err != nil {
		return nil, errors.Join(ErrInvalidBitstreamId, err)
	}
	return &BitstreamId{value: ulidValue}, nil
}

func MustParseBitstreamId(s string) BitstreamId {
	return BitstreamId{value: ulid.MustParse(s)}
}

func (b BitstreamId) String() string {
	return b.value.String()
}

func (b BitstreamId) Compare(other BitstreamId) int {
	return b.value.Compare(other.value)
}

func (b BitstreamId) IsZero() bool {
	return b.value.IsZero()
}

func (b BitstreamId) MarshalText() ([]byte, error) {
	return b.value.MarshalText()
}

func (b *BitstreamId) UnmarshalText(text []byte) error {
	return b.value.UnmarshalText(text)
}

type Outcome string

const (
	ChecksumMatch            Outcome = "CHECKSUM_MATCH"
	ChecksumNoMatch          Outcome = "CHECKSUM_NO_MATCH"
	BitstreamNotFound        Outcome = "BITSTREAM_NOT_FOUND"
	BitstreamMarkedDeleted   Outcome = "BITSTREAM_MARKED_DELETED"
	BitstreamInfoNotFound    Outcome = "BITSTREAM_INFO_NOT_FOUND"
	ChecksumAlgorithmInvalid Outcome = "CHECKSUM_ALGORITHM_INVALID"
)

// Outcomes lists every outcome in report order.
var Outcomes = []Outcome{
	ChecksumMatch,
	ChecksumNoMatch,
	BitstreamNotFound,
	BitstreamMarkedDeleted,
	BitstreamInfoNotFound,
	ChecksumAlgorithmInvalid,
}

var ErrUnknownOutcome = errors.New("unknown outcome")

func ParseOutcome(s string) (Outcome, error) {
	for _, outcome := range Outcomes {
		if string(outcome) == s {
			return outcome, nil
		}
	}
	return "", ErrUnknownOutcome
}

func (o Outcome) Description() string {
	switch o {
	case ChecksumMatch:
		return "Checksum matched"
	case ChecksumNoMatch:
		return "Checksum did not match"
	case BitstreamNotFound:
		return "Bitstream could not be read from storage"
	case BitstreamMarkedDeleted:
		return "Bitstream marked deleted"
	case BitstreamInfoNotFound:
		return "No checksum record found for bitstream"
	case ChecksumAlgorithmInvalid:
		return "Checksum algorithm is not supported"
	}
	return "Unknown outcome"
}

// Actionable reports whether the outcome needs an operator's attention.
func (o Outcome) Actionable() bool {
	return o == ChecksumNoMatch || o == BitstreamNotFound
}

// Verification is what a single read-and-hash of a bitstream observed.
// ObservedDigest is empty when no bytes were read.
type Verification struct {
	ObservedDigest string
	Outcome        Outcome
	Algorithm      string
	Deleted        bool
}

// Result is a Verification bound to a bitstream and the window it ran in.
type Result struct {
	BitstreamId BitstreamId
	Verification
	WindowStart time.Time
	WindowEnd   time.Time
}
