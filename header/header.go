// Package header defines the envelope metadata carried by every
// smartmessage instance: routing identity (from/to/reply_to), the message
// class and version, and the publish-time stamps the transport layer needs.
package header

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Header is the routing and identity envelope owned by a message instance.
// It is embedded in the wire payload under the reserved key (see
// serializer.HeaderKey) so it round-trips alongside the message's own
// properties.
type Header struct {
	UUID         string     `json:"uuid" msgpack:"uuid"`
	MessageClass string     `json:"message_class" msgpack:"message_class"`
	Version      int        `json:"version" msgpack:"version"`
	PublishedAt  *time.Time `json:"published_at,omitempty" msgpack:"published_at,omitempty"`
	PublisherPID int        `json:"publisher_pid,omitempty" msgpack:"publisher_pid,omitempty"`
	From         string     `json:"from" msgpack:"from"`
	To           *string    `json:"to" msgpack:"to"`
	ReplyTo      *string    `json:"reply_to,omitempty" msgpack:"reply_to,omitempty"`
	Serializer   string     `json:"serializer,omitempty" msgpack:"serializer,omitempty"`
}

// New creates a header with a fresh UUID and the class's declared version.
// The publish-time fields (PublishedAt, PublisherPID, Serializer) are left
// zero until StampForPublish is called.
func New(messageClass string, version int, from, to, replyTo string) *Header {
	h := &Header{
		UUID:         uuid.New().String(),
		MessageClass: messageClass,
		Version:      version,
		From:         from,
	}
	if to != "" {
		h.To = &to
	}
	if replyTo != "" {
		h.ReplyTo = &replyTo
	}
	return h
}

// StampForPublish sets the publish-time fields. Idempotent within one
// publish call; a re-publish of the same instance resets the stamp.
func (h *Header) StampForPublish(serializerName string) {
	now := time.Now().UTC()
	h.PublishedAt = &now
	h.PublisherPID = os.Getpid()
	h.Serializer = serializerName
}

// Broadcast reports whether this header denotes an undirected message.
func (h *Header) Broadcast() bool {
	return h.To == nil
}

// MissingFromError is raised when a header's From is empty at publish time.
type MissingFromError struct{}

func (e *MissingFromError) Error() string {
	return "header: from is required to publish"
}

// InvalidVersionError is raised when a header's Version is not positive.
type InvalidVersionError struct {
	Version int
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("header: version %d must be a positive integer", e.Version)
}

// VersionMismatchError is raised when an incoming header's version does not
// match the message class's declared version.
type VersionMismatchError struct {
	MessageClass    string
	DeclaredVersion int
	HeaderVersion   int
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("header: %s declares version %d but header carries version %d",
		e.MessageClass, e.DeclaredVersion, e.HeaderVersion)
}

// Validate enforces the header invariants: From must be non-empty,
// Version must be a positive integer.
func (h *Header) Validate() error {
	if h.From == "" {
		return &MissingFromError{}
	}
	if h.Version <= 0 {
		return &InvalidVersionError{Version: h.Version}
	}
	return nil
}

// CheckVersion rejects a header whose version does not match the class's
// declared version. Policy is fail-closed: no silent coercion.
func CheckVersion(h *Header, declaredVersion int) error {
	if h.Version != declaredVersion {
		return &VersionMismatchError{
			MessageClass:    h.MessageClass,
			DeclaredVersion: declaredVersion,
			HeaderVersion:   h.Version,
		}
	}
	return nil
}

// Clone returns a deep copy of the header.
func (h *Header) Clone() *Header {
	clone := *h
	if h.PublishedAt != nil {
		t := *h.PublishedAt
		clone.PublishedAt = &t
	}
	if h.To != nil {
		v := *h.To
		clone.To = &v
	}
	if h.ReplyTo != nil {
		v := *h.ReplyTo
		clone.ReplyTo = &v
	}
	return &clone
}
