package proto

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// Kind tags the variant held by a Message.
type Kind uint8

const (
	// KindText is a UTF-8 chat line.
	KindText Kind = iota + 1
	// KindImage is an opaque image payload.
	KindImage
	// KindFile is a named binary attachment.
	KindFile
	// KindAuth carries the identifier of the handshake.
	KindAuth
	// KindError carries a human-readable failure reason.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindFile:
		return "file"
	case KindAuth:
		return "auth"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool {
	return k >= KindText && k <= KindError
}

// Message is the unit exchanged between relay and clients.
//
// Body holds the text of Text, the identifier of Auth and the reason of Error.
// Name and Data are used by File; Image uses Data only.
type Message struct {
	Kind Kind
	Body string
	Name string
	Data []byte
}

// Text builds a text message.
func Text(body string) Message { return Message{Kind: KindText, Body: body} }

// Image builds an image message.
func Image(data []byte) Message { return Message{Kind: KindImage, Data: data} }

// File builds a named attachment message.
func File(name string, data []byte) Message {
	return Message{Kind: KindFile, Name: name, Data: data}
}

// Auth builds a handshake message for identifier.
func Auth(identifier string) Message { return Message{Kind: KindAuth, Body: identifier} }

// Error builds an error report.
func Error(reason string) Message { return Message{Kind: KindError, Body: reason} }

// Equal reports whether m and other hold the same variant and contents.
// A nil and an empty Data compare equal.
func (m Message) Equal(other Message) bool {
	return m.Kind == other.Kind &&
		m.Body == other.Body &&
		m.Name == other.Name &&
		bytes.Equal(m.Data, other.Data)
}

// Validate checks that the variant is known and that text fields are UTF-8.
func (m Message) Validate() error {
	if !m.Kind.valid() {
		return fmt.Errorf("unknown message kind %d", uint8(m.Kind))
	}
	if !utf8.ValidString(m.Body) {
		return fmt.Errorf("%s body is not valid utf-8", m.Kind)
	}
	if !utf8.ValidString(m.Name) {
		return fmt.Errorf("%s name is not valid utf-8", m.Kind)
	}
	return nil
}

// String renders a short description suitable for logs; payload bytes are not included.
func (m Message) String() string {
	switch m.Kind {
	case KindText:
		return fmt.Sprintf("text(%d bytes)", len(m.Body))
	case KindImage:
		return fmt.Sprintf("image(%d bytes)", len(m.Data))
	case KindFile:
		return fmt.Sprintf("file(%q, %d bytes)", m.Name, len(m.Data))
	case KindAuth:
		return fmt.Sprintf("auth(%q)", m.Body)
	case KindError:
		return fmt.Sprintf("error(%q)", m.Body)
	default:
		return m.Kind.String()
	}
}
