package core

import (
	"fmt"

	"hgimport/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// Link 代表 Tree 中指向子对象的哈希引用
// 在 CBOR 层面，它会被序列化为 Tag 42(0x00 + HashBytes)
type Link struct {
	Hash types.Hash
}

const (
	linkTagNumber = 42
)

func NewLink(hash types.Hash) Link {
	return Link{Hash: hash}
}

// MarshalCBOR 规范：Tag 42, Content = [0x00, byte1, byte2...]
func (l Link) MarshalCBOR() ([]byte, error) {
	content := make([]byte, 0, 1+types.HashSize)
	content = append(content, 0x00)
	content = append(content, l.Hash[:]...)

	return em.Marshal(cbor.Tag{
		Number:  linkTagNumber,
		Content: content,
	})
}

func (l *Link) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := dm.Unmarshal(data, &tag); err != nil {
		return err
	}

	if tag.Number != linkTagNumber {
		return fmt.Errorf("expected tag 42 for Link, got %d", tag.Number)
	}

	content, ok := tag.Content.([]byte)
	if !ok {
		return fmt.Errorf("link content must be byte string")
	}
	if len(content) < 1 {
		return fmt.Errorf("invalid link: empty content")
	}
	if content[0] != 0x00 {
		return fmt.Errorf("invalid link: missing 0x00 multibase prefix")
	}

	h, err := types.HashFromBytes(content[1:])
	if err != nil {
		return fmt.Errorf("invalid link: %w", err)
	}
	l.Hash = h
	return nil
}
