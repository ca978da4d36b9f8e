package httpapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bnema/botfleet/internal/domain"
)

type interactionRequest struct {
	Account    string `json:"account"`
	Family     string `json:"family"`
	TargetID   string `json:"target_id"`
	TargetType string `json:"target_type"`
	Text       string `json:"text,omitempty"`
	Direction  string `json:"direction,omitempty"`
	Remove     bool   `json:"remove,omitempty"`
}

type relationshipResponse struct {
	Related bool `json:"related"`
}

func (c *Client) interact(ctx context.Context, account domain.Account, target domain.Target, body interactionRequest) error {
	body.Account = string(account.ID)
	body.TargetID = target.ID
	body.TargetType = string(target.Type)
	return c.do(ctx, http.MethodPost, "/v1/interactions", nil, account, body, nil)
}

func (c *Client) Comment(ctx context.Context, account domain.Account, target domain.Target, text string) error {
	return c.interact(ctx, account, target, interactionRequest{Family: string(domain.FamilyComment), Text: text})
}

func (c *Client) Vote(ctx context.Context, account domain.Account, target domain.Target, direction domain.VoteDirection) error {
	return c.interact(ctx, account, target, interactionRequest{Family: string(domain.FamilyVote), Direction: string(direction)})
}

func (c *Client) Favorite(ctx context.Context, account domain.Account, target domain.Target, remove bool) error {
	return c.interact(ctx, account, target, interactionRequest{Family: string(domain.FamilyFavorite), Remove: remove})
}

func (c *Client) Follow(ctx context.Context, account domain.Account, target domain.Target, remove bool) error {
	return c.interact(ctx, account, target, interactionRequest{Family: string(domain.FamilyFollow), Remove: remove})
}

// Related asks the gateway whether account is a friend of a profile or a
// member of a group.
func (c *Client) Related(ctx context.Context, account domain.Account, target domain.Target) (bool, error) {
	path := "/v1/accounts/" + url.PathEscape(string(account.ID)) +
		"/relationships/" + url.PathEscape(string(target.Type)) + "/" + url.PathEscape(target.ID)

	var out relationshipResponse
	if err := c.do(ctx, http.MethodGet, path, nil, account, nil, &out); err != nil {
		return false, err
	}
	return out.Related, nil
}
