package domain

import (
	"fmt"
	"strings"
)

type TargetType string

const (
	TargetProfile    TargetType = "profile"
	TargetGroup      TargetType = "group"
	TargetSharedfile TargetType = "sharedfile"
	TargetDiscussion TargetType = "discussion"
	TargetCurator    TargetType = "curator"
	TargetReview     TargetType = "review"
)

func (t TargetType) Valid() bool {
	switch t {
	case TargetProfile, TargetGroup, TargetSharedfile, TargetDiscussion, TargetCurator, TargetReview:
		return true
	default:
		return false
	}
}

func ParseTargetType(raw string) (TargetType, error) {
	t := TargetType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown target type %q", ErrInvalidTarget, raw)
	}
	return t, nil
}

// Target is a resolved entity on the platform. Public reports whether accounts
// without a relationship (friendship, membership) may interact with it.
type Target struct {
	ID     string
	Type   TargetType
	Public bool
}

func (t Target) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTarget)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: unknown target type %q", ErrInvalidTarget, t.Type)
	}
	return nil
}
