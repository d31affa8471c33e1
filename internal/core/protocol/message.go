package protocol

import (
	"bytes"
	"errors"
	"io"
	"unicode/utf8"

	varint "github.com/multiformats/go-varint"

	"github.com/dep2p/go-substrate/pkg/protocolids"
)

const (
	// MultistreamID 协商协议头
	MultistreamID = string(protocolids.Multistream)

	// NA 拒绝提议
	NA = "na"

	// LS 请求列出支持的协议
	LS = "ls"
)

// maxListSize ls 响应上限
const maxListSize = 64 << 10

// byteReader 逐字节读取长度前缀，保证不越过当前消息
type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	for {
		n, err := b.r.Read(b.buf[:])
		if n == 1 {
			return b.buf[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// appendMessage 追加一条消息: uvarint(len) || msg || '\n'
func appendMessage(buf []byte, msg string, limit int) ([]byte, error) {
	n := len(msg) + 1
	if n > limit {
		return nil, ErrFrameTooLarge
	}
	buf = append(buf, varint.ToUvarint(uint64(n))...)
	buf = append(buf, msg...)
	return append(buf, '\n'), nil
}

// readFrame 读取一条消息并去掉结尾的 '\n'，只消费该消息本身的字节
func readFrame(r io.Reader, limit int) ([]byte, error) {
	l, err := varint.ReadUvarint(&byteReader{r: r})
	if err != nil {
		if errors.Is(err, varint.ErrOverflow) || errors.Is(err, varint.ErrNotMinimal) {
			return nil, ErrMalformedMessage
		}
		return nil, err
	}
	if l > uint64(limit) {
		return nil, ErrFrameTooLarge
	}
	if l == 0 {
		return nil, ErrMalformedMessage
	}

	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if buf[l-1] != '\n' {
		return nil, ErrMalformedMessage
	}
	return buf[:l-1], nil
}

// readMessage 读取一条 UTF-8 文本消息
func readMessage(r io.Reader, limit int) (string, error) {
	msg, err := readFrame(r, limit)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(msg) {
		return "", ErrMalformedMessage
	}
	return string(msg), nil
}

// encodeList 编码完整的 ls 响应: 每个协议一条内嵌消息，外层再加长度前缀和 '\n'
func encodeList(protos []string, limit int) ([]byte, error) {
	var inner []byte
	var err error
	for _, p := range protos {
		if inner, err = appendMessage(inner, p, limit); err != nil {
			return nil, err
		}
	}
	n := len(inner) + 1
	if n > maxListSize {
		return nil, ErrFrameTooLarge
	}
	out := append(varint.ToUvarint(uint64(n)), inner...)
	return append(out, '\n'), nil
}

// decodeList 解析 ls 响应体
func decodeList(body []byte, limit int) ([]string, error) {
	r := bytes.NewReader(body)
	var out []string
	for r.Len() > 0 {
		p, err := readMessage(r, limit)
		if err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				err = ErrMalformedMessage
			}
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
