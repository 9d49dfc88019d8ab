package classifier

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
)

type keywordGroup struct {
	value    string
	keywords []string
}

// Groups are checked in order; the first group with a hit wins.
var categoryGroups = []keywordGroup{
	{models.CategoryInfrastructure, []string{"pothole", "road", "bridge", "water pipe"}},
	{models.CategorySanitation, []string{"garbage", "waste", "smell", "dirty"}},
	{models.CategoryEnvironment, []string{"tree", "pollution", "smoke", "lake"}},
	{models.CategoryPublicSafety, []string{"crime", "dark", "robbery", "accident"}},
}

var severityGroups = []keywordGroup{
	{models.SeverityCritical, []string{"danger", "immediate", "fatal", "blood"}},
	{models.SeverityHigh, []string{"huge", "many", "blocked", "broken"}},
	{models.SeverityLow, []string{"small", "minor", "little"}},
}

// Keywords derives a category and severity from text by substring match.
// Unmatched text is "other" and "medium".
func Keywords(text string) (category, severity string) {
	t := strings.ToLower(text)
	return firstMatch(t, categoryGroups, models.CategoryOther), firstMatch(t, severityGroups, models.SeverityMedium)
}

func firstMatch(text string, groups []keywordGroup, def string) string {
	for _, g := range groups {
		for _, k := range g.keywords {
			if strings.Contains(text, k) {
				return g.value
			}
		}
	}
	return def
}
