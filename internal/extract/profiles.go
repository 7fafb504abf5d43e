package extract

import "time"

const (
	desktopChromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	mobileSafariUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1"
)

// DefaultPrimaryProfile is used for the first extraction attempt.
func DefaultPrimaryProfile() Profile {
	return Profile{
		Name:      "primary",
		UserAgent: desktopChromeUA,
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-us,en;q=0.5",
			"Sec-Fetch-Mode":  "navigate",
		},
		ExtractorArgs: map[string]map[string][]string{
			"youtube": {
				"skip":          {"dash", "live"},
				"player_client": {"android"},
				"player_skip":   {"webpage", "configs"},
			},
		},
		SocketTimeout:      30 * time.Second,
		Retries:            3,
		NoCheckCertificate: true,
	}
}

// DefaultAlternateProfile is used once when the primary attempt was rejected as automated
// traffic. It presents a different client and asks for more retries.
func DefaultAlternateProfile() Profile {
	return Profile{
		Name:      "alternate",
		UserAgent: mobileSafariUA,
		Headers: map[string]string{
			"Accept":          "*/*",
			"Accept-Language": "en-US,en;q=0.9",
			"Sec-Fetch-Mode":  "navigate",
			"Referer":         "https://www.youtube.com/",
		},
		ExtractorArgs: map[string]map[string][]string{
			"youtube": {
				"player_client": {"ios", "web_safari", "mweb"},
				"player_skip":   {"configs"},
			},
		},
		SocketTimeout:      60 * time.Second,
		Retries:            10,
		NoCheckCertificate: true,
	}
}
