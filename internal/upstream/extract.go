package upstream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nao1215/xspider/internal/model"
)

// Page is one page of a Following listing.
type Page struct {
	// Nodes are the followed accounts, in upstream order.
	Nodes []model.Node

	// NextCursor is the cursor for the following page. Empty at the end.
	NextCursor string

	// Entries counts the user entries upstream returned, including
	// unavailable accounts that were not turned into nodes.
	Entries int
}

// HasMore reports whether another page should be requested.
// Upstream signals the end with a page that has no user entries, an empty
// cursor or a cursor starting "0|". A page whose users were all
// unavailable still continues.
func (p *Page) HasMore() bool {
	return p.Entries > 0 && p.NextCursor != "" && !strings.HasPrefix(p.NextCursor, "0|")
}

type userLegacy struct {
	ScreenName     string `json:"screen_name"`
	Name           string `json:"name"`
	FollowersCount int64  `json:"followers_count"`
	FriendsCount   int64  `json:"friends_count"`
}

type userResult struct {
	TypeName string     `json:"__typename"`
	RestID   string     `json:"rest_id"`
	Reason   string     `json:"reason"`
	Legacy   userLegacy `json:"legacy"`
}

func (u userResult) node() model.Node {
	return model.Node{
		ID:             u.RestID,
		Handle:         u.Legacy.ScreenName,
		DisplayName:    u.Legacy.Name,
		FollowersCount: u.Legacy.FollowersCount,
		FollowingCount: u.Legacy.FriendsCount,
	}
}

type timelineEntry struct {
	EntryID string `json:"entryId"`
	Content struct {
		Value       string `json:"value"`
		ItemContent struct {
			UserResults struct {
				Result userResult `json:"result"`
			} `json:"user_results"`
		} `json:"itemContent"`
	} `json:"content"`
}

type followingResponse struct {
	Data struct {
		User struct {
			Result struct {
				Timeline struct {
					Timeline struct {
						Instructions []struct {
							Type    string          `json:"type"`
							Entries []timelineEntry `json:"entries"`
						} `json:"instructions"`
					} `json:"timeline"`
				} `json:"timeline"`
			} `json:"result"`
		} `json:"user"`
	} `json:"data"`
}

// ExtractFollowingPage parses a Following payload.
func ExtractFollowingPage(body []byte) (*Page, error) {
	var resp followingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	page := &Page{}
	for _, inst := range resp.Data.User.Result.Timeline.Timeline.Instructions {
		if inst.Type != "TimelineAddEntries" {
			continue
		}
		for _, entry := range inst.Entries {
			switch {
			case strings.HasPrefix(entry.EntryID, "user-"):
				page.Entries++
				u := entry.Content.ItemContent.UserResults.Result
				if u.TypeName != "User" || u.RestID == "" {
					continue
				}
				page.Nodes = append(page.Nodes, u.node())
			case strings.HasPrefix(entry.EntryID, "cursor-bottom-"):
				page.NextCursor = entry.Content.Value
			}
		}
	}
	return page, nil
}

type userResponse struct {
	Data struct {
		User struct {
			Result *userResult `json:"result"`
		} `json:"user"`
	} `json:"data"`
}

// ExtractUser parses a UserByScreenName payload.
func ExtractUser(body []byte) (model.Node, error) {
	var resp userResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Node{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	u := resp.Data.User.Result
	switch {
	case u == nil:
		return model.Node{}, fmt.Errorf("%w: not found", ErrNodeUnavailable)
	case u.TypeName == "UserUnavailable":
		return model.Node{}, fmt.Errorf("%w: %s", ErrNodeUnavailable, u.Reason)
	case u.RestID == "":
		return model.Node{}, fmt.Errorf("%w: user without rest_id", ErrMalformedResponse)
	}
	return u.node(), nil
}
