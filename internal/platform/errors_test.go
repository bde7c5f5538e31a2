package platform

import "testing"

func TestExtractErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		fallback string
		want     string
	}{
		{
			name: "graph error message",
			body: `{"error":{"message":"Invalid parameter","type":"OAuthException","code":100}}`,
			want: "Invalid parameter",
		},
		{
			name: "graph user message preferred",
			body: `{"error":{"message":"Invalid parameter","error_user_msg":"The image is too large."}}`,
			want: "The image is too large.",
		},
		{
			name: "tiktok error",
			body: `{"error":{"code":"spam_risk_too_many_posts","message":"Daily post cap reached"}}`,
			want: "Daily post cap reached",
		},
		{
			name: "tiktok ok code ignored",
			body: `{"data":{"publish_id":"v123"},"error":{"code":"ok","message":""}}`,
			want: "fallback",
		},
		{
			name: "tiktok code without message",
			body: `{"error":{"code":"access_token_invalid"}}`,
			want: "access_token_invalid",
		},
		{
			name: "oauth description",
			body: `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`,
			want: "Token has been expired or revoked.",
		},
		{
			name: "flat message",
			body: `{"message":"Internal server error"}`,
			want: "Internal server error",
		},
		{
			name: "flat string error",
			body: `{"error":"quota exceeded"}`,
			want: "quota exceeded",
		},
		{
			name: "short plain text body",
			body: "service unavailable",
			want: "service unavailable",
		},
		{
			name: "empty body falls back",
			body: "",
			want: "fallback",
		},
		{
			name: "unparseable html falls back",
			body: "<html>" + string(make([]byte, 300)) + "</html>",
			want: "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := tt.fallback
			if fallback == "" {
				fallback = "fallback"
			}
			got := ExtractErrorMessage([]byte(tt.body), fallback)
			if got != tt.want {
				t.Errorf("ExtractErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPublishErrorString(t *testing.T) {
	err := &PublishError{Platform: "tiktok", Code: "spam_risk", Message: "too many posts"}
	if got, want := err.Error(), "tiktok: too many posts (spam_risk)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err = &PublishError{Platform: "facebook", Message: "no page_id override or linked page id"}
	if got, want := err.Error(), "facebook: no page_id override or linked page id"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
