package cluster

import "strings"

// Stream and bucket names may not contain '.', so run ids and channel names
// are folded into an upper-case, underscore separated form.
func sanitizeName(s string) string {
	x := strings.TrimSpace(s)
	x = strings.ReplaceAll(x, ".", "_")
	x = strings.ReplaceAll(x, "-", "_")
	x = strings.ReplaceAll(x, " ", "_")
	return strings.ToUpper(x)
}

func streamName(runID, channel string) string {
	return "PIPE_" + sanitizeName(runID) + "_" + sanitizeName(channel)
}

func subjectName(runID, channel string) string {
	return "pipeline." + sanitizeName(runID) + "." + channel
}

func bucketName(runID string) string {
	return "PIPE_" + sanitizeName(runID) + "_CTL"
}

const durableName = "workers"
