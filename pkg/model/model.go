// Package model defines the wire types exchanged with the Animals API.
//
// Fields that arrive in more than one shape (friends, born_at) are resolved to
// a single tagged representation during JSON decoding, so code past the
// boundary never inspects raw JSON types.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedPage is returned by ListingPage.Validate for responses that do
// not carry the expected listing shape.
var ErrMalformedPage = errors.New("malformed listing page")

// RawListItem is one entry of the listing endpoint.
type RawListItem struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	BornAt BornAt `json:"born_at"`
}

// ListingPage is the response of GET /animals/v1/animals?page=N.
type ListingPage struct {
	Items      []RawListItem `json:"items"`
	Page       int           `json:"page"`
	TotalPages int           `json:"total_pages"`
}

// UnmarshalJSON implements json.Unmarshaler. items, page and total_pages are
// required; a body without any of them is ErrMalformedPage.
func (p *ListingPage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Items      []RawListItem `json:"items"`
		Page       *int          `json:"page"`
		TotalPages *int          `json:"total_pages"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var missing []string
	if raw.Items == nil {
		missing = append(missing, "items")
	}
	if raw.Page == nil {
		missing = append(missing, "page")
	}
	if raw.TotalPages == nil {
		missing = append(missing, "total_pages")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformedPage, strings.Join(missing, ", "))
	}

	*p = ListingPage{Items: raw.Items, Page: *raw.Page, TotalPages: *raw.TotalPages}
	return nil
}

// Validate checks the listing shape. A missing items array or a negative page
// count is reported as ErrMalformedPage.
func (p *ListingPage) Validate() error {
	if p.Items == nil {
		return fmt.Errorf("%w: items missing", ErrMalformedPage)
	}
	if p.TotalPages < 0 {
		return fmt.Errorf("%w: total_pages = %d", ErrMalformedPage, p.TotalPages)
	}
	return nil
}

// IDs returns the item identifiers in listing order.
func (p *ListingPage) IDs() []int64 {
	ids := make([]int64, 0, len(p.Items))
	for _, item := range p.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

// DetailRecord is the response of GET /animals/v1/animals/{id}.
type DetailRecord struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	BornAt  BornAt  `json:"born_at"`
	Friends Friends `json:"friends"`
}

// TransformedRecord is the outbound shape posted to the home endpoint.
// Values are constructed once by the transformer and passed by value.
type TransformedRecord struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	BornAt  *string  `json:"born_at"`
	Friends []string `json:"friends"`
}

// HomeResponse is the acknowledgement returned by POST /animals/v1/home.
type HomeResponse struct {
	Message string `json:"message"`
}

// BornAt is an optional epoch-milliseconds timestamp.
//
// Accepted JSON shapes: null, an integer, a float (truncated) or a string
// holding either of those.
type BornAt struct {
	Millis int64
	Valid  bool
}

// BornAtMillis returns a present BornAt.
func BornAtMillis(ms int64) BornAt {
	return BornAt{Millis: ms, Valid: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *BornAt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = BornAt{}
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("born_at: %w", err)
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*b = BornAt{}
			return nil
		}
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*b = BornAtMillis(ms)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("born_at: unsupported value %s", string(data))
	}
	*b = BornAtMillis(int64(f))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (b BornAt) MarshalJSON() ([]byte, error) {
	if !b.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, b.Millis, 10), nil
}

// FriendsKind tags which shape a Friends value arrived in.
type FriendsKind uint8

const (
	// FriendsAbsent means the field was null or missing.
	FriendsAbsent FriendsKind = iota
	// FriendsDelimited means a comma-delimited string.
	FriendsDelimited
	// FriendsList means an already-split array of names.
	FriendsList
)

// Friends holds the friends field of a detail record in its received shape.
type Friends struct {
	Kind      FriendsKind
	Delimited string
	Names     []string
}

// DelimitedFriends returns a Friends value holding a comma-delimited string.
func DelimitedFriends(s string) Friends {
	return Friends{Kind: FriendsDelimited, Delimited: s}
}

// FriendNames returns a Friends value holding pre-split names.
func FriendNames(names ...string) Friends {
	if names == nil {
		names = []string{}
	}
	return Friends{Kind: FriendsList, Names: names}
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Friends) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = Friends{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("friends: %w", err)
		}
		*f = DelimitedFriends(s)
		return nil
	case len(data) > 0 && data[0] == '[':
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			return fmt.Errorf("friends: %w", err)
		}
		*f = FriendNames(names...)
		return nil
	default:
		return fmt.Errorf("friends: unsupported value %s", string(data))
	}
}

// MarshalJSON implements json.Marshaler.
func (f Friends) MarshalJSON() ([]byte, error) {
	switch f.Kind {
	case FriendsDelimited:
		return json.Marshal(f.Delimited)
	case FriendsList:
		return json.Marshal(f.Names)
	default:
		return []byte("null"), nil
	}
}
