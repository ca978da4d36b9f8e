package domain

import "fmt"

type Family string

const (
	FamilyComment  Family = "comment"
	FamilyVote     Family = "vote"
	FamilyFavorite Family = "favorite"
	FamilyFollow   Family = "follow"
)

func (f Family) Valid() bool {
	switch f {
	case FamilyComment, FamilyVote, FamilyFavorite, FamilyFollow:
		return true
	default:
		return false
	}
}

// Kind identifies the interaction and target type combination of a batch.
// Inverse marks the undo variant of an interaction (unfollow, unfavorite).
type Kind struct {
	Family  Family
	Target  TargetType
	Inverse bool
}

func (k Kind) String() string {
	if k.Inverse {
		return fmt.Sprintf("un%s/%s", k.Family, k.Target)
	}
	return fmt.Sprintf("%s/%s", k.Family, k.Target)
}

// ForbidsLimited reports whether limited accounts are rejected by the platform
// for this kind.
func (k Kind) ForbidsLimited() bool {
	return k.Target == TargetGroup || k.Family == FamilyVote
}

// TracksHistory reports whether an account may perform this kind only once
// per target, so past interactions must be remembered.
func (k Kind) TracksHistory() bool {
	return k.Family != FamilyComment
}

func (k Kind) NeedsPrerequisite() bool {
	return (k.Family == FamilyComment && k.Target == TargetProfile) || k.Target == TargetGroup
}

func (k Kind) PrioritizesRelationship() bool {
	return k.Target == TargetProfile
}

// PerAccountCap is the number of units a single account may contribute to one
// batch of this kind.
func (k Kind) PerAccountCap(commentCap int) int {
	if k.Family != FamilyComment {
		return 1
	}
	if commentCap < 1 {
		return 1
	}
	return commentCap
}
