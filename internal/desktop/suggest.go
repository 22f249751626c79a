package desktop

import "strings"

// Suggestions returns platform-specific hints for a failure detail, usually
// the extractor's stderr.
func Suggestions(platform, details string) []string {
	if details == "" {
		return nil
	}
	d := strings.ToLower(details)
	forbidden := strings.Contains(d, "403") || strings.Contains(d, "forbidden")

	var out []string
	switch platform {
	case "facebook":
		if forbidden {
			out = append(out,
				"Try logging into Facebook in your browser first",
				"Make sure the video privacy settings allow viewing",
				"Check if the video is still available",
			)
		}
	case "instagram":
		if strings.Contains(d, "private") || strings.Contains(d, "403") {
			out = append(out,
				"Ensure you're following this Instagram account",
				"Try logging into Instagram in your browser",
				"Check if the content is still available",
			)
		}
	case "youtube":
		if strings.Contains(d, "private") {
			out = append(out, "This YouTube video is private or unlisted")
		} else if strings.Contains(d, "copyright") {
			out = append(out, "This video may be blocked due to copyright restrictions")
		}
	case "tiktok":
		if strings.Contains(d, "403") {
			out = append(out,
				"Try accessing TikTok in your browser first",
				"Some TikTok videos require account access",
			)
		}
	}

	if strings.Contains(d, "timeout") {
		out = append(out, "Try again - the server may be temporarily overloaded")
	} else if strings.Contains(d, "network") || strings.Contains(d, "connection") {
		out = append(out, "Check your internet connection")
	}
	return out
}
