package retry

import (
	"fmt"
	"net/http"
	"strings"
)

// Category is the outward facing class of a failed download.
type Category string

const (
	// CategoryBlocked means the upstream source rejected the request as automated traffic.
	CategoryBlocked     Category = "blocked"
	CategoryUnavailable Category = "unavailable"
	CategoryRegion      Category = "region"
	CategoryGeneric     Category = "generic"
)

const botChallengePhrase = "sign in to confirm you're not a bot"

var (
	unavailablePhrases = []string{"video unavailable", "private video", "this video is private"}
	regionPhrases      = []string{
		"this video is not available",
		"not available in your country",
		"not available in your region",
		"uploader has not made this video available",
		"has been removed",
		"video has been terminated",
	}
)

// IsBotDetection reports whether an extractor error message carries the upstream
// bot-detection signature. The match is case-insensitive.
func IsBotDetection(message string) bool {
	lower := normalize(message)

	return strings.Contains(lower, "bot") || strings.Contains(lower, botChallengePhrase)
}

// Classify maps an extractor error message to a Category. Matching is substring based and
// case-insensitive; anything unrecognized is CategoryGeneric.
func Classify(message string) Category {
	if IsBotDetection(message) {
		return CategoryBlocked
	}

	lower := normalize(message)

	for _, phrase := range unavailablePhrases {
		if strings.Contains(lower, phrase) {
			return CategoryUnavailable
		}
	}

	for _, phrase := range regionPhrases {
		if strings.Contains(lower, phrase) {
			return CategoryRegion
		}
	}

	return CategoryGeneric
}

// Message is the fixed user facing explanation for c.
func (c Category) Message() string {
	switch c {
	case CategoryBlocked:
		return "YouTube is blocking automated access. This is a temporary issue. Please try again later or use a different video."
	case CategoryUnavailable:
		return "This video is unavailable or private. Please check the URL and try again."
	case CategoryRegion:
		return "This video is not available in your region or has been removed."
	default:
		return "Download failed. Please check the URL and try again."
	}
}

// HTTPStatus is the response status used for c.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryBlocked:
		return http.StatusForbidden
	case CategoryUnavailable, CategoryRegion:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// Failure is a classified, final download failure.
type Failure struct {
	Category Category
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("download failed (%s): %v", f.Category, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// normalize lower-cases s and folds typographic apostrophes, which yt-dlp uses in some
// messages.
func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "’", "'")
}
