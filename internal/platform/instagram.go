package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/postmux/postmux/internal/transfer"
)

const instagramGraphURL = "https://graph.instagram.com/v21.0"

// InstagramAdapter runs the two-step container protocol: create a media
// container, wait for processing when the container is a video or reel,
// then publish the container.
type InstagramAdapter struct {
	client       *apiClient
	pollInterval time.Duration
	maxPolls     int
}

func NewInstagramAdapter() *InstagramAdapter {
	return &InstagramAdapter{
		client:       newAPIClient(30*time.Second, 5, 5),
		pollInterval: 5 * time.Second,
		maxPolls:     24,
	}
}

func (a *InstagramAdapter) Tag() string { return "instagram" }

func (a *InstagramAdapter) Publish(ctx context.Context, cred Credential, pub Publication) (string, error) {
	if pub.MediaURL == "" {
		return "", &PublishError{Platform: "instagram", Message: "instagram posts require media"}
	}

	containerID, err := a.createContainer(ctx, cred, pub)
	if err != nil {
		return "", err
	}

	// Image containers are ready immediately; video and reel containers
	// need server-side processing before they can be published.
	if pub.MediaType != "image" {
		if err := a.waitForContainer(ctx, cred, containerID); err != nil {
			return "", err
		}
	}

	return a.publishContainer(ctx, cred, containerID)
}

func (a *InstagramAdapter) createContainer(ctx context.Context, cred Credential, pub Publication) (string, error) {
	url := fmt.Sprintf("%s/%s/media", instagramGraphURL, cred.AccountID)

	payload := map[string]interface{}{
		"caption":      pub.Content,
		"access_token": cred.AccessToken,
	}
	switch pub.MediaType {
	case "image":
		payload["image_url"] = pub.MediaURL
	default:
		payload["media_type"] = "REELS"
		payload["video_url"] = pub.MediaURL
	}
	if shareToFeed, ok := pub.Overrides["share_to_feed"]; ok {
		payload["share_to_feed"] = shareToFeed
	}

	status, body, err := a.client.postJSON(ctx, url, payload, nil)
	if err != nil {
		return "", fmt.Errorf("instagram request failed: %w", err)
	}
	if status != http.StatusOK {
		return "", providerError("instagram", status, body)
	}

	var result transfer.GraphIDResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error parsing instagram response: %w", err)
	}
	if result.ID == "" {
		return "", &PublishError{Platform: "instagram", Message: "no media container id returned"}
	}
	return result.ID, nil
}

func (a *InstagramAdapter) waitForContainer(ctx context.Context, cred Credential, containerID string) error {
	url := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s", instagramGraphURL, containerID, cred.AccessToken)

	for i := 0; i < a.maxPolls; i++ {
		status, body, err := a.client.get(ctx, url, nil)
		if err != nil {
			return fmt.Errorf("instagram request failed: %w", err)
		}
		if status != http.StatusOK {
			return providerError("instagram", status, body)
		}

		var result transfer.GraphContainerStatus
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("error parsing instagram response: %w", err)
		}

		switch result.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return &PublishError{Platform: "instagram", Code: result.StatusCode, Message: "media container processing failed"}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}

	return &PublishError{Platform: "instagram", Message: "media container still processing after timeout"}
}

func (a *InstagramAdapter) publishContainer(ctx context.Context, cred Credential, containerID string) (string, error) {
	url := fmt.Sprintf("%s/%s/media_publish", instagramGraphURL, cred.AccountID)
	payload := map[string]string{
		"creation_id":  containerID,
		"access_token": cred.AccessToken,
	}

	status, body, err := a.client.postJSON(ctx, url, payload, nil)
	if err != nil {
		return "", fmt.Errorf("instagram request failed: %w", err)
	}
	if status != http.StatusOK {
		return "", providerError("instagram", status, body)
	}

	var result transfer.GraphIDResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error parsing instagram response: %w", err)
	}
	if result.ID == "" {
		return "", &PublishError{Platform: "instagram", Message: "no media id returned"}
	}
	return result.ID, nil
}
