package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidCursor is returned for tokens that were not produced by Encode.
var ErrInvalidCursor = errors.New("invalid pagination token")

// Cursor is the opaque keyset position we encode/decode.
// CreatedUnix (millis) + ID identify the last row of the previous page.
type Cursor struct {
	CreatedUnix int64  `json:"created_unix"`
	ID          string `json:"id"`
}

// At builds a cursor pointing at the row created at ts with the given id.
func At(ts time.Time, id string) Cursor {
	return Cursor{CreatedUnix: ts.UnixMilli(), ID: id}
}

// IsZero reports whether c is the start position.
func (c Cursor) IsZero() bool {
	return c.ID == "" && c.CreatedUnix == 0
}

// Time returns the cursor timestamp in UTC.
func (c Cursor) Time() time.Time {
	return time.UnixMilli(c.CreatedUnix).UTC()
}

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses a Base64 string into a Cursor.
// Empty token → zero cursor (first page).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil || c.ID == "" {
		return Cursor{}, ErrInvalidCursor
	}
	return c, nil
}
