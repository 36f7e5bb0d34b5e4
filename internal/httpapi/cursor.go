package httpapi

import (
	"errors"

	"github.com/gorilla/securecookie"
)

const cursorName = "users-page"

// CursorCodec seals directory offsets into opaque page tokens so clients cannot forge
// arbitrary offsets.
type CursorCodec struct {
	sc *securecookie.SecureCookie
}

type cursor struct {
	Offset int `json:"o"`
}

// NewCursorCodec builds a codec from a hash key and an optional AES block key (16, 24 or 32
// bytes). An empty hash key gets a random one, so tokens do not survive restarts.
func NewCursorCodec(hashKey, blockKey []byte) *CursorCodec {
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(3600)
	return &CursorCodec{sc: sc}
}

func (c *CursorCodec) Encode(offset int) (string, error) {
	return c.sc.Encode(cursorName, cursor{Offset: offset})
}

func (c *CursorCodec) Decode(token string) (int, error) {
	var cur cursor
	if err := c.sc.Decode(cursorName, token, &cur); err != nil {
		return 0, err
	}
	if cur.Offset < 0 {
		return 0, errors.New("negative offset")
	}
	return cur.Offset, nil
}
