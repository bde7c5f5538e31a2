package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/postmux/postmux/internal/transfer"
)

const tiktokAPIURL = "https://open.tiktokapis.com/v2"

// TiktokAdapter publishes a video through the direct-post flow: init an
// upload pulling the video from its public URL, then poll the publish
// status until TikTok finishes processing.
type TiktokAdapter struct {
	client       *apiClient
	pollInterval time.Duration
	maxPolls     int
}

func NewTiktokAdapter() *TiktokAdapter {
	return &TiktokAdapter{
		client:       newAPIClient(30*time.Second, 2, 3),
		pollInterval: 5 * time.Second,
		maxPolls:     24,
	}
}

func (a *TiktokAdapter) Tag() string { return "tiktok" }

func (a *TiktokAdapter) Publish(ctx context.Context, cred Credential, pub Publication) (string, error) {
	if pub.MediaURL == "" || pub.MediaType == "image" {
		return "", &PublishError{Platform: "tiktok", Message: "tiktok posts require a video"}
	}

	title := pub.Content
	if pub.Title != "" {
		title = pub.Title
	}
	privacy := pub.Overrides["privacy_level"]
	if privacy == "" {
		privacy = "PUBLIC_TO_EVERYONE"
	}

	request := transfer.TiktokVideoUploadRequest{
		PostInfo: transfer.TiktokVideoPostInfo{
			Title:                 title,
			PrivacyLevel:          privacy,
			VideoCoverTimestampMs: 1000,
		},
		SourceInfo: transfer.TiktokVideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: pub.MediaURL,
		},
	}

	headers := map[string]string{"Authorization": "Bearer " + cred.AccessToken}

	status, body, err := a.client.postJSON(ctx, tiktokAPIURL+"/post/publish/video/init/", request, headers)
	if err != nil {
		return "", fmt.Errorf("tiktok request failed: %w", err)
	}
	if status != http.StatusOK {
		return "", providerError("tiktok", status, body)
	}

	var result transfer.TiktokPublishResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error parsing tiktok response: %w", err)
	}
	if result.Error.Code != "" && result.Error.Code != "ok" {
		return "", &PublishError{Platform: "tiktok", Code: result.Error.Code, Message: result.Error.Message}
	}
	if result.Data.PublishID == "" {
		return "", &PublishError{Platform: "tiktok", Message: "no publish id returned"}
	}

	if err := a.waitForPublish(ctx, cred, result.Data.PublishID); err != nil {
		return "", err
	}

	return result.Data.PublishID, nil
}

func (a *TiktokAdapter) waitForPublish(ctx context.Context, cred Credential, publishID string) error {
	headers := map[string]string{"Authorization": "Bearer " + cred.AccessToken}
	payload := map[string]string{"publish_id": publishID}

	for i := 0; i < a.maxPolls; i++ {
		status, body, err := a.client.postJSON(ctx, tiktokAPIURL+"/post/publish/status/fetch/", payload, headers)
		if err != nil {
			return fmt.Errorf("tiktok request failed: %w", err)
		}
		if status != http.StatusOK {
			return providerError("tiktok", status, body)
		}

		var result transfer.TiktokPublishStatus
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("error parsing tiktok response: %w", err)
		}
		if result.Error.Code != "" && result.Error.Code != "ok" {
			return &PublishError{Platform: "tiktok", Code: result.Error.Code, Message: result.Error.Message}
		}

		switch result.Data.Status {
		case "PUBLISH_COMPLETE":
			return nil
		case "FAILED":
			return &PublishError{Platform: "tiktok", Code: result.Data.FailReason, Message: "video publish failed"}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}

	return &PublishError{Platform: "tiktok", Message: "video still processing after timeout"}
}
