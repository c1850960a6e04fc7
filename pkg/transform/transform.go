// Package transform maps fetched detail records to the outbound sink shape.
//
// All functions are pure apart from debug logging. Timestamps are rendered in
// the transformer's location, which defaults to the local system clock; the
// rendered string carries no UTC offset.
package transform

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/animal-etl/pkg/model"
	"github.com/rs/zerolog"
)

// TimestampLayout is the ISO-8601 layout used for born_at, without offset.
// A ".ffffff" fraction is appended when the instant has sub-second precision.
const TimestampLayout = "2006-01-02T15:04:05"

var (
	// ErrYearOutOfRange is returned for instants outside years 1..9999.
	ErrYearOutOfRange = errors.New("year out of range")

	// ErrUnknownFriends is returned for a friends value with no known shape tag.
	ErrUnknownFriends = errors.New("unknown friends shape")
)

// TransformError is the failure to convert one field of one record.
type TransformError struct {
	ID    int64
	Field string
	Err   error
}

// Error implements the error interface.
func (e *TransformError) Error() string {
	return fmt.Sprintf("transform animal %d: %s: %v", e.ID, e.Field, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransformError) Unwrap() error {
	return e.Err
}

// Transformer converts DetailRecords to TransformedRecords.
type Transformer struct {
	loc    *time.Location
	logger zerolog.Logger
}

// New creates a transformer rendering timestamps in loc (nil means time.Local).
func New(loc *time.Location, logger zerolog.Logger) *Transformer {
	if loc == nil {
		loc = time.Local
	}
	return &Transformer{
		loc:    loc,
		logger: logger.With().Str("component", "transformer").Logger(),
	}
}

// Location returns the location timestamps are rendered in.
func (t *Transformer) Location() *time.Location {
	return t.loc
}

// Transform converts one record. The result shares no memory with rec.
func (t *Transformer) Transform(rec model.DetailRecord) (model.TransformedRecord, error) {
	bornAt, err := RenderTimestamp(rec.BornAt, t.loc)
	if err != nil {
		return model.TransformedRecord{}, &TransformError{ID: rec.ID, Field: "born_at", Err: err}
	}

	friends, err := NormalizeFriends(rec.Friends)
	if err != nil {
		return model.TransformedRecord{}, &TransformError{ID: rec.ID, Field: "friends", Err: err}
	}

	t.logger.Debug().Int64("animal_id", rec.ID).Str("name", rec.Name).Msg("Transformed animal")

	return model.TransformedRecord{
		ID:      rec.ID,
		Name:    rec.Name,
		BornAt:  bornAt,
		Friends: friends,
	}, nil
}

// TransformBatch converts every record it can. Records that fail are reported
// in errs and left out of out; input order is kept for the rest.
func (t *Transformer) TransformBatch(recs []model.DetailRecord) (out []model.TransformedRecord, errs []*TransformError) {
	out = make([]model.TransformedRecord, 0, len(recs))
	for _, rec := range recs {
		tr, err := t.Transform(rec)
		if err != nil {
			var te *TransformError
			if !errors.As(err, &te) {
				te = &TransformError{ID: rec.ID, Field: "record", Err: err}
			}
			t.logger.Warn().Err(err).Int64("animal_id", rec.ID).Msg("Failed to transform animal")
			errs = append(errs, te)
			continue
		}
		out = append(out, tr)
	}
	return out, errs
}

// RenderTimestamp renders epoch milliseconds as an ISO-8601 string in loc.
// An absent value renders as nil.
func RenderTimestamp(b model.BornAt, loc *time.Location) (*string, error) {
	if !b.Valid {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}

	ts := time.UnixMilli(b.Millis).In(loc)
	if y := ts.Year(); y < 1 || y > 9999 {
		return nil, fmt.Errorf("%w: %d ms is year %d", ErrYearOutOfRange, b.Millis, y)
	}

	s := ts.Format(TimestampLayout)
	if us := ts.Nanosecond() / 1000; us != 0 {
		s = fmt.Sprintf("%s.%06d", s, us)
	}
	return &s, nil
}

// SplitFriends splits a comma-delimited list, trimming whitespace and dropping
// empty pieces. Duplicates and order are kept. The result is never nil.
func SplitFriends(s string) []string {
	out := []string{}
	for _, piece := range strings.Split(s, ",") {
		if name := strings.TrimSpace(piece); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// NormalizeFriends resolves a Friends value to an ordered list of names.
// Pre-split lists pass through unchanged (copied); absent values yield an
// empty list.
func NormalizeFriends(f model.Friends) ([]string, error) {
	switch f.Kind {
	case model.FriendsAbsent:
		return []string{}, nil
	case model.FriendsDelimited:
		return SplitFriends(f.Delimited), nil
	case model.FriendsList:
		out := make([]string, len(f.Names))
		copy(out, f.Names)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFriends, f.Kind)
	}
}
