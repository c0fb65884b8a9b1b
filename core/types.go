package core

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// UserID uniquely identifies a tracked player. The canonical form is a
// lowercase UUID string.
type UserID string

// NewUserID returns a freshly generated random UserID.
func NewUserID() UserID { return UserID(uuid.NewString()) }

// ParseUserID validates and canonicalizes an externally supplied identifier.
func ParseUserID(s string) (UserID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty user id")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return UserID(id.String()), nil
}

// ExpSource names the gameplay category an experience grant originated from
// (combat, mining, chat, ...). The core never interprets it; it is passed to
// the Gate collaborator verbatim.
type ExpSource string

// SourceAdmin marks grants made through administrative operations, which
// bypass gating and multipliers.
const SourceAdmin ExpSource = "admin"
