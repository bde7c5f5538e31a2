package platform

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YoutubeAdapter uploads a video with the stored OAuth access token.
// The video bytes are streamed from the resolved media URL.
type YoutubeAdapter struct{}

func NewYoutubeAdapter() *YoutubeAdapter {
	return &YoutubeAdapter{}
}

func (a *YoutubeAdapter) Tag() string { return "youtube" }

func (a *YoutubeAdapter) Publish(ctx context.Context, cred Credential, pub Publication) (string, error) {
	if pub.MediaURL == "" || pub.MediaType == "image" {
		return "", &PublishError{Platform: "youtube", Message: "youtube posts require a video"}
	}

	token := &oauth2.Token{AccessToken: cred.AccessToken}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	service, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", fmt.Errorf("error creating youtube service: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", pub.MediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error downloading video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &PublishError{Platform: "youtube", Message: fmt.Sprintf("video download returned status %d", resp.StatusCode)}
	}

	title := pub.Title
	if title == "" {
		title = pub.Content
	}
	privacy := pub.Overrides["privacy_status"]
	if privacy == "" {
		privacy = "public"
	}
	categoryID := pub.Overrides["category_id"]
	if categoryID == "" {
		categoryID = "22"
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: pub.Content,
			CategoryId:  categoryID,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: privacy},
	}

	call := service.Videos.Insert([]string{"snippet", "status"}, video)
	uploaded, err := call.Media(resp.Body).Do()
	if err != nil {
		return "", &PublishError{Platform: "youtube", Message: err.Error()}
	}

	return uploaded.Id, nil
}
