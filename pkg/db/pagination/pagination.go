package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

// ErrInvalidToken reports a page token that does not decode to a cursor.
var ErrInvalidToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=50"`
}

// Limit clamps the requested page size into the served range.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 || p.PageSize > maxPageSize {
		return defaultPageSize
	}
	return p.PageSize
}

type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// TokenForID encodes a single-ID cursor. Marshaling a plain ID cannot
// fail, so the token is returned directly.
func TokenForID(id snowflake.ID) string {
	token, _ := EncodeCursor(Cursor{ID: id.String()})
	return token
}

// DecodeIDToken extracts the snowflake ID a TokenForID cursor points at.
func DecodeIDToken(token string) (snowflake.ID, error) {
	cursor, err := DecodeCursor(token)
	if err != nil {
		return 0, ErrInvalidToken
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// BuildPageInfo trims an over-fetched result set (limit+1 rows) and
// reports whether more rows remain past the cursor.
func BuildPageInfo[T any](data []*T, limit int, extractCursor func(*T) string) ([]*T, *PageInfo) {
	if len(data) == 0 {
		return data, &PageInfo{HasMore: false}
	}

	hasMore := false
	if len(data) > limit {
		hasMore = true
		data = data[:limit]
	}

	return data, &PageInfo{
		HasMore:       hasMore,
		NextPageToken: extractCursor(data[len(data)-1]),
	}
}
