package version

// Version is the current version of the interview monitor
const Version = "0.4.0"

// UserAgent returns the User-Agent string for outbound HTTP requests
func UserAgent() string {
	return "interview-monitor/" + Version
}

// ServerHeader returns the Server header value for HTTP responses
func ServerHeader() string {
	return "interview-monitor/" + Version
}
