package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/bnema/botfleet/internal/domain"
)

// Reference is a target as typed by a user, before the gateway canonicalized
// it. Vanity is set when the input names a profile or group by its custom
// URL rather than its numeric id.
type Reference struct {
	Type   domain.TargetType
	ID     string
	Vanity bool
}

var numericID = regexp.MustCompile(`^\d+$`)

// Path segments of platform links, mapped to the target type they name.
var linkSegments = map[string]domain.TargetType{
	"profiles":    domain.TargetProfile,
	"id":          domain.TargetProfile,
	"groups":      domain.TargetGroup,
	"gid":         domain.TargetGroup,
	"sharedfiles": domain.TargetSharedfile,
	"discussions": domain.TargetDiscussion,
	"curator":     domain.TargetCurator,
	"recommended": domain.TargetReview,
}

// ParseReference understands "type:id", platform links and bare ids. A bare
// id needs an expected type.
func ParseReference(raw string, expected domain.TargetType) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, fmt.Errorf("%w: target is required", domain.ErrInvalidTarget)
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return parseLink(raw)
	}

	if before, after, ok := strings.Cut(raw, ":"); ok {
		targetType, err := domain.ParseTargetType(before)
		if err != nil {
			return Reference{}, err
		}
		return newReference(targetType, after)
	}

	if expected == "" {
		return Reference{}, fmt.Errorf("%w: cannot tell the type of %q", domain.ErrInvalidTarget, raw)
	}
	return newReference(expected, raw)
}

func parseLink(raw string) (Reference, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %w", domain.ErrInvalidTarget, err)
	}

	segments := strings.FieldsFunc(parsed.Path, func(r rune) bool { return r == '/' })
	for i, segment := range segments {
		targetType, ok := linkSegments[strings.ToLower(segment)]
		if !ok {
			continue
		}

		// sharedfiles/filedetails/?id=N carries the id in the query.
		if id := parsed.Query().Get("id"); id != "" {
			return newReference(targetType, id)
		}
		if i+1 < len(segments) {
			return newReference(targetType, segments[len(segments)-1])
		}
	}

	return Reference{}, fmt.Errorf("%w: unrecognized link %q", domain.ErrInvalidTarget, raw)
}

func newReference(targetType domain.TargetType, id string) (Reference, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Reference{}, fmt.Errorf("%w: id is required", domain.ErrInvalidTarget)
	}
	return Reference{Type: targetType, ID: id, Vanity: !numericID.MatchString(id)}, nil
}

type resolveResponse struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Public bool   `json:"public"`
}

// Resolve parses raw locally and lets the gateway canonicalize it and report
// its visibility.
func (c *Client) Resolve(ctx context.Context, raw string, expected domain.TargetType) (domain.Target, error) {
	ref, err := ParseReference(raw, expected)
	if err != nil {
		return domain.Target{}, err
	}
	if expected != "" && ref.Type != expected {
		return domain.Target{}, fmt.Errorf("%w: %s is a %s, expected a %s", domain.ErrInvalidTarget, raw, ref.Type, expected)
	}

	query := url.Values{}
	query.Set("type", string(ref.Type))
	query.Set("id", ref.ID)
	if ref.Vanity {
		query.Set("vanity", "1")
	}

	var out resolveResponse
	if err := c.do(ctx, http.MethodGet, "/v1/resolve", query, domain.Account{}, nil, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return domain.Target{}, fmt.Errorf("%w: %s not found", domain.ErrInvalidTarget, raw)
		}
		return domain.Target{}, fmt.Errorf("resolve %s: %w", raw, err)
	}

	target := domain.Target{ID: out.ID, Type: domain.TargetType(out.Type), Public: out.Public}
	if err := target.Validate(); err != nil {
		return domain.Target{}, err
	}
	return target, nil
}
