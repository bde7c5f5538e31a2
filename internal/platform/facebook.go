package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/postmux/postmux/internal/transfer"
)

const facebookGraphURL = "https://graph.facebook.com/v21.0"

// FacebookAdapter publishes to a Facebook page. The page id comes from
// the post's per-platform overrides; the stored credential must be a
// page access token.
type FacebookAdapter struct {
	client *apiClient
}

func NewFacebookAdapter() *FacebookAdapter {
	return &FacebookAdapter{
		client: newAPIClient(30*time.Second, 5, 5),
	}
}

func (a *FacebookAdapter) Tag() string { return "facebook" }

func (a *FacebookAdapter) Publish(ctx context.Context, cred Credential, pub Publication) (string, error) {
	pageID := pub.Overrides["page_id"]
	if pageID == "" {
		pageID = cred.AccountID
	}
	if pageID == "" {
		return "", &PublishError{Platform: "facebook", Message: "no page_id override or linked page id"}
	}

	var url string
	payload := map[string]interface{}{
		"access_token": cred.AccessToken,
	}

	switch {
	case pub.MediaURL != "" && pub.MediaType == "image":
		url = fmt.Sprintf("%s/%s/photos", facebookGraphURL, pageID)
		payload["url"] = pub.MediaURL
		payload["caption"] = pub.Content
	case pub.MediaURL != "":
		url = fmt.Sprintf("%s/%s/videos", facebookGraphURL, pageID)
		payload["file_url"] = pub.MediaURL
		payload["description"] = pub.Content
		if pub.Title != "" {
			payload["title"] = pub.Title
		}
	default:
		url = fmt.Sprintf("%s/%s/feed", facebookGraphURL, pageID)
		payload["message"] = pub.Content
	}

	status, body, err := a.client.postJSON(ctx, url, payload, nil)
	if err != nil {
		return "", fmt.Errorf("facebook request failed: %w", err)
	}
	if status != http.StatusOK {
		return "", providerError("facebook", status, body)
	}

	var result transfer.GraphIDResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error parsing facebook response: %w", err)
	}
	if result.PostID != "" {
		return result.PostID, nil
	}
	if result.ID == "" {
		return "", &PublishError{Platform: "facebook", Message: "no post id returned"}
	}
	return result.ID, nil
}
