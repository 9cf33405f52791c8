package upstream

import (
	"encoding/json"
	"net/url"
	"strconv"
)

// DefaultBaseURL is the GraphQL API root.
const DefaultBaseURL = "https://x.com/i/api/graphql"

// Endpoint is a persisted GraphQL query.
type Endpoint struct {
	QueryID   string
	Operation string
}

// URL returns the request URL under baseURL.
func (e Endpoint) URL(baseURL string) string {
	return baseURL + "/" + e.QueryID + "/" + e.Operation
}

var (
	// Following lists the accounts a user follows.
	Following = Endpoint{QueryID: "2vUj-_Ek-UmBVDNtd8OnQA", Operation: "Following"}

	// UserByScreenName resolves a handle to a user.
	UserByScreenName = Endpoint{QueryID: "NimuplG1OB7Fd2btCLdBOw", Operation: "UserByScreenName"}
)

// timelineFeatures are the feature flags the web client sends with
// timeline queries. Upstream rejects requests that omit them.
var timelineFeatures = map[string]bool{
	"creator_subscriptions_tweet_preview_api_enabled":                         true,
	"c9s_tweet_anatomy_moderator_badge_enabled":                               true,
	"tweetypie_unmention_optimization_enabled":                                true,
	"responsive_web_edit_tweet_api_enabled":                                   true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
	"view_counts_everywhere_api_enabled":                                      true,
	"longform_notetweets_consumption_enabled":                                 true,
	"responsive_web_twitter_article_tweet_consumption_enabled":                true,
	"tweet_awards_web_tipping_enabled":                                        false,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"longform_notetweets_inline_media_enabled":                                true,
	"rweb_video_timestamps_enabled":                                           true,
	"responsive_web_graphql_exclude_directive_enabled":                        true,
	"verified_phone_label_enabled":                                            false,
	"freedom_of_speech_not_reach_fetch_enabled":                               true,
	"standardized_nudges_misinfo":                                             true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"responsive_web_media_download_video_enabled":                             false,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_enhance_cards_enabled":                                    false,
}

// userFeatures are the feature flags for user lookups.
var userFeatures = map[string]bool{
	"hidden_profile_likes_enabled":                                      true,
	"hidden_profile_subscriptions_enabled":                              true,
	"responsive_web_graphql_exclude_directive_enabled":                  true,
	"verified_phone_label_enabled":                                      false,
	"subscriptions_verification_info_is_identity_verified_enabled":      true,
	"subscriptions_verification_info_verified_since_enabled":            true,
	"highlights_tweets_tab_ui_enabled":                                  true,
	"responsive_web_twitter_article_notes_tab_enabled":                  true,
	"creator_subscriptions_tweet_preview_api_enabled":                   true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled": false,
	"responsive_web_graphql_timeline_navigation_enabled":                true,
}

// followingParams builds the query string for one Following page.
func followingParams(userID string, count int, cursor string) (url.Values, error) {
	variables := map[string]any{
		"userId":                 userID,
		"count":                  count,
		"includePromotedContent": false,
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}
	return encodeParams(variables, timelineFeatures, nil)
}

// userByScreenNameParams builds the query string for a handle lookup.
func userByScreenNameParams(handle string) (url.Values, error) {
	variables := map[string]any{
		"screen_name":              handle,
		"withSafetyModeUserFields": true,
	}
	toggles := map[string]bool{"withAuxiliaryUserLabels": false}
	return encodeParams(variables, userFeatures, toggles)
}

func encodeParams(variables map[string]any, features, toggles map[string]bool) (url.Values, error) {
	v, err := json.Marshal(variables)
	if err != nil {
		return nil, err
	}
	f, err := json.Marshal(features)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("variables", string(v))
	params.Set("features", string(f))
	if toggles != nil {
		t, err := json.Marshal(toggles)
		if err != nil {
			return nil, err
		}
		params.Set("fieldToggles", string(t))
	}
	return params, nil
}

// parseInt64 parses a header value, returning ok=false when absent or bad.
func parseInt64(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
