package domain

import (
	"cmp"
	"slices"
	"strings"
)

// MaxReadStats is how many zines the passport highlights.
const MaxReadStats = 3

// PassportTheme is a named palette of hex colors for the passport.
type PassportTheme struct {
	Name       string `json:"name"`
	Background string `json:"background"`
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Accent     string `json:"accent"`
	Text       string `json:"text"`
}

// PassportThemes lists every theme a passport can be rendered with.
var PassportThemes = []PassportTheme{
	{Name: "Riot Grrrl Revival", Background: "#1A1A1A", Primary: "#FF4D6D", Secondary: "#7FFF00", Accent: "#FFD700", Text: "#FFFFFF"},
	{Name: "Underground Press", Background: "#2B2D42", Primary: "#FF9F1C", Secondary: "#4ECDC4", Accent: "#FF477E", Text: "#EDF2F4"},
	{Name: "Analog Dreams", Background: "#F7F3E9", Primary: "#FF6B6B", Secondary: "#4D96FF", Accent: "#6B4423", Text: "#2C3333"},
	{Name: "Digital Dystopia", Background: "#0F0F0F", Primary: "#00FF9F", Secondary: "#FF2A6D", Accent: "#7700FF", Text: "#E0E0E0"},
	{Name: "Vintage Xerox", Background: "#F5F5F5", Primary: "#1A1A1A", Secondary: "#666666", Accent: "#FF3366", Text: "#000000"},
	{Name: "Neo Tokyo", Background: "#1F1F1F", Primary: "#FF0099", Secondary: "#00FF8C", Accent: "#FFB800", Text: "#FFFFFF"},
	{Name: "Botanical Underground", Background: "#EBE5D9", Primary: "#2D5A27", Secondary: "#8B4513", Accent: "#FF6B6B", Text: "#1A1A1A"},
	{Name: "Midnight Radio", Background: "#150050", Primary: "#3F0071", Secondary: "#FB2576", Accent: "#FFE61B", Text: "#FFFFFF"},
	{Name: "Protest Press", Background: "#F5F5F5", Primary: "#FF0000", Secondary: "#000000", Accent: "#FFD700", Text: "#1A1A1A"},
	{Name: "Vaporwave Vision", Background: "#181818", Primary: "#FF71CE", Secondary: "#01CDFE", Accent: "#05FFA1", Text: "#FFFFFF"},
}

// ThemeByName looks a theme up ignoring case.
func ThemeByName(name string) (PassportTheme, bool) {
	for _, t := range PassportThemes {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return PassportTheme{}, false
}

// ZineReadStats is how many issues of a zine the user has read.
type ZineReadStats struct {
	ZineName      string `json:"zine_name"`
	IssueCount    int    `json:"issue_count"`
	CoverImageURL string `json:"cover_image_url"`
}

// ReadStats ranks the zines in groups by issues read, keeping the top three.
// The cover is the catalog zine's cover when the catalog knows the zine,
// otherwise the cover of the group's first issue.
func ReadStats(groups []IssueGroup, zines []Zine) []ZineReadStats {
	covers := make(map[string]string, len(zines))
	for _, z := range zines {
		covers[z.Name] = z.CoverImageURL
	}

	stats := make([]ZineReadStats, 0, len(groups))
	for _, g := range groups {
		if len(g.Issues) == 0 {
			continue
		}
		cover, ok := covers[g.ZineName]
		if !ok || cover == "" {
			cover = g.Issues[0].CoverImageURL
		}
		stats = append(stats, ZineReadStats{
			ZineName:      g.ZineName,
			IssueCount:    len(g.Issues),
			CoverImageURL: cover,
		})
	}

	slices.SortStableFunc(stats, func(a, b ZineReadStats) int {
		return cmp.Compare(b.IssueCount, a.IssueCount)
	})
	if len(stats) > MaxReadStats {
		stats = stats[:MaxReadStats]
	}
	return stats
}
