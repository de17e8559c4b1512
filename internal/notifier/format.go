package notifier

import (
	"fmt"
	"strings"

	"github.com/embywatch/embywatch/internal/emby"
)

// overviewLimit is the maximum caption synopsis length before truncation.
const overviewLimit = 145

// ItemTitle returns the display title for a library item. Episodes are
// rendered as "{Series} S{season:02} E{episode:02} {name}", with the name
// omitted when it is the server's default "Episode N" placeholder.
func ItemTitle(item *emby.Item) string {
	if item.Type != "Episode" {
		return item.Name
	}
	title := fmt.Sprintf("%s S%02d E%02d", item.SeriesName, item.ParentIndexNumber, item.IndexNumber)
	if item.Name != "" && item.Name != fmt.Sprintf("Episode %d", item.IndexNumber) {
		title += " " + item.Name
	}
	return title
}

// TruncateOverview clips an overview to overviewLimit characters, appending
// an ellipsis marker when anything was cut.
func TruncateOverview(overview string) string {
	runes := []rune(overview)
	if len(runes) <= overviewLimit {
		return overview
	}
	return string(runes[:overviewLimit]) + "..."
}

// BuildItemCaption renders the chat caption for a newly added item.
func BuildItemCaption(item *emby.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", ItemTitle(item))

	var meta []string
	meta = append(meta, item.Type)
	if item.ProductionYear > 0 {
		meta = append(meta, fmt.Sprintf("%d", item.ProductionYear))
	}
	if item.CommunityRating > 0 {
		meta = append(meta, fmt.Sprintf("%.1f", item.CommunityRating))
	}
	if item.OfficialRating != "" {
		meta = append(meta, item.OfficialRating)
	}
	b.WriteString(strings.Join(meta, " | "))

	if item.Overview != "" {
		b.WriteString("\n\n")
		b.WriteString(TruncateOverview(item.Overview))
	}
	return b.String()
}

// BuildPlaybackCaption renders the "started playing" notification text.
func BuildPlaybackCaption(s emby.Session) string {
	title := s.UserName
	if title == "" {
		title = "Someone"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s started playing *%s*", title, ItemTitle(s.NowPlayingItem))
	if s.DeviceName != "" {
		fmt.Fprintf(&b, "\nDevice: %s", s.DeviceName)
	}
	if s.Client != "" {
		fmt.Fprintf(&b, " (%s)", s.Client)
	}
	return b.String()
}
