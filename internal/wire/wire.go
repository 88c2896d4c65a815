// Package wire frames control messages as newline-delimited JSON over a
// net.Conn.
//
// A Conn built with a cipher seals every line, writing
// base64(nonce+ciphertext) in place of the JSON so framing is unchanged.
package wire

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.klb.dev/clipstash/internal/crypto"
	"go.klb.dev/clipstash/internal/message"
)

// MaxMessageSize is the largest line ReadMsg accepts (64 MiB). A LIST
// response carries only entry summaries, so this is far above normal use.
const MaxMessageSize = 64 << 20

const defaultWriteTimeout = 5 * time.Second

// ErrTooLarge is returned by ReadMsg for a line over MaxMessageSize.
var ErrTooLarge = errors.New("message too large")

// Option configures a Conn.
type Option func(*Conn)

// WithCipher seals every message with c. Both ends must use the same
// passphrase.
func WithCipher(c *crypto.Cipher) Option {
	return func(conn *Conn) { conn.cipher = c }
}

// WithWriteTimeout bounds each WriteMsg. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(conn *Conn) { conn.writeTimeout = d }
}

// Conn wraps a net.Conn with message framing.
type Conn struct {
	conn         net.Conn
	br           *bufio.Reader
	cipher       *crypto.Cipher
	writeTimeout time.Duration
}

// New wraps conn.
func New(conn net.Conn, opts ...Option) *Conn {
	c := &Conn{
		conn:         conn,
		br:           bufio.NewReaderSize(conn, 64*1024),
		writeTimeout: defaultWriteTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetReadDeadline sets the read deadline d from now; zero clears it.
func (c *Conn) SetReadDeadline(d time.Duration) {
	var t time.Time
	if d > 0 {
		t = time.Now().Add(d)
	}
	_ = c.conn.SetReadDeadline(t)
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.conn.Close() }

// WriteMsg encodes msg and writes it as one line.
func (c *Conn) WriteMsg(msg *message.Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if c.cipher != nil {
		ct, err := c.cipher.Encrypt(raw)
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
		raw = []byte(base64.StdEncoding.EncodeToString(ct))
	}

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}
	_, err = c.conn.Write(append(raw, '\n'))
	return err
}

// ReadMsg reads and decodes one line. It returns io.EOF when the peer
// closes cleanly between messages.
func (c *Conn) ReadMsg() (*message.Message, error) {
	line, err := c.readLine()
	if err != nil {
		return nil, err
	}
	if c.cipher != nil {
		ct, err := base64.StdEncoding.DecodeString(string(line))
		if err != nil {
			return nil, fmt.Errorf("base64 decode: %w", err)
		}
		if line, err = c.cipher.Decrypt(ct); err != nil {
			return nil, fmt.Errorf("decrypt: %w", err)
		}
	}
	return message.Decode(line)
}

func (c *Conn) readLine() ([]byte, error) {
	var buf bytes.Buffer
	for {
		chunk, err := c.br.ReadSlice('\n')
		if buf.Len()+len(chunk) > MaxMessageSize+1 {
			return nil, fmt.Errorf("%w (over %d bytes)", ErrTooLarge, MaxMessageSize)
		}
		buf.Write(chunk)
		switch {
		case err == nil:
			return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && buf.Len() > 0:
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}
