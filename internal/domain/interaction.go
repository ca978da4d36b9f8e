package domain

import (
	"context"
	"fmt"
	"strings"
)

// Interaction is the tagged union of everything a batch can perform. Each
// variant carries its own arguments; the concrete type is chosen once when
// the batch is created.
type Interaction interface {
	Family() Family
	Inverse() bool
	Supports(target TargetType) bool
	Validate() error
}

// Action performs one unit of work for the given account. unit is the
// iteration index of the batch.
type Action func(ctx context.Context, account Account, unit int) error

type VoteDirection string

const (
	VoteUp    VoteDirection = "up"
	VoteDown  VoteDirection = "down"
	VoteFunny VoteDirection = "funny"
)

type Comment struct {
	Texts []string
}

func (Comment) Family() Family { return FamilyComment }
func (Comment) Inverse() bool  { return false }

func (Comment) Supports(target TargetType) bool {
	switch target {
	case TargetProfile, TargetGroup, TargetSharedfile, TargetDiscussion, TargetReview:
		return true
	default:
		return false
	}
}

func (c Comment) Validate() error {
	for _, text := range c.Texts {
		if strings.TrimSpace(text) != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: comment needs at least one text", ErrInvalidInteraction)
}

// TextFor returns the comment text used by the given unit.
func (c Comment) TextFor(unit int) string {
	texts := make([]string, 0, len(c.Texts))
	for _, text := range c.Texts {
		if strings.TrimSpace(text) != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return ""
	}
	if unit < 0 {
		unit = 0
	}
	return texts[unit%len(texts)]
}

type Vote struct {
	Direction VoteDirection
}

func (Vote) Family() Family { return FamilyVote }
func (Vote) Inverse() bool  { return false }

func (v Vote) Supports(target TargetType) bool {
	switch target {
	case TargetSharedfile:
		return v.Direction != VoteFunny
	case TargetReview:
		return true
	default:
		return false
	}
}

func (v Vote) Validate() error {
	switch v.Direction {
	case VoteUp, VoteDown, VoteFunny:
		return nil
	default:
		return fmt.Errorf("%w: unknown vote direction %q", ErrInvalidInteraction, v.Direction)
	}
}

type Favorite struct {
	Remove bool
}

func (Favorite) Family() Family  { return FamilyFavorite }
func (f Favorite) Inverse() bool { return f.Remove }

func (Favorite) Supports(target TargetType) bool {
	return target == TargetSharedfile
}

func (Favorite) Validate() error { return nil }

type Follow struct {
	Remove bool
}

func (Follow) Family() Family  { return FamilyFollow }
func (f Follow) Inverse() bool { return f.Remove }

func (Follow) Supports(target TargetType) bool {
	return target == TargetCurator || target == TargetProfile
}

func (Follow) Validate() error { return nil }

func KindOf(interaction Interaction, target TargetType) Kind {
	return Kind{Family: interaction.Family(), Target: target, Inverse: interaction.Inverse()}
}

// ValidateInteraction checks the interaction arguments and that the
// interaction is possible on the target type.
func ValidateInteraction(interaction Interaction, target TargetType) error {
	if interaction == nil {
		return fmt.Errorf("%w: interaction is required", ErrInvalidInteraction)
	}
	if err := interaction.Validate(); err != nil {
		return err
	}
	if !interaction.Supports(target) {
		return fmt.Errorf("%w: %s is not supported on %s targets", ErrInvalidInteraction, interaction.Family(), target)
	}
	return nil
}

// InteractionArgs carries the arguments of every interaction variant; each
// variant reads only its own fields.
type InteractionArgs struct {
	Texts     []string
	Direction VoteDirection
	Remove    bool
}

func ParseFamily(raw string) (Family, error) {
	family := Family(strings.ToLower(strings.TrimSpace(raw)))
	if !family.Valid() {
		return "", fmt.Errorf("%w: unknown interaction %q", ErrInvalidInteraction, raw)
	}
	return family, nil
}

// NewInteraction builds the variant of family from args and validates it.
func NewInteraction(family Family, args InteractionArgs) (Interaction, error) {
	var interaction Interaction
	switch family {
	case FamilyComment:
		interaction = Comment{Texts: args.Texts}
	case FamilyVote:
		direction := args.Direction
		if direction == "" {
			direction = VoteUp
		}
		interaction = Vote{Direction: direction}
	case FamilyFavorite:
		interaction = Favorite{Remove: args.Remove}
	case FamilyFollow:
		interaction = Follow{Remove: args.Remove}
	default:
		return nil, fmt.Errorf("%w: unknown interaction %q", ErrInvalidInteraction, family)
	}

	if err := interaction.Validate(); err != nil {
		return nil, err
	}
	return interaction, nil
}
