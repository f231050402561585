package chunk

import (
	"regexp"
	"strings"
)

var (
	tableLineRe    = regexp.MustCompile(`\|.*\|`)
	tableTabsRe    = regexp.MustCompile(`\t`)
	tableSpaceRunRe = regexp.MustCompile(`\S[ ]{3,}\S`)

	listBulletRe  = regexp.MustCompile(`^\s*[-*•]\s+`)
	listNumberedRe = regexp.MustCompile(`^\s*\d+[.)]\s+`)
	listLetteredRe = regexp.MustCompile(`^\s*[a-zA-Z][.)]\s+`)
	listRomanRe    = regexp.MustCompile(`(?i)^\s*[ivxlcdm]+[.)]\s+`)
)

// detectTableList inspects a paragraph's raw lines (before sentence
// splitting) and reports containsTable / containsList using a
// per-paragraph line-shape heuristic.
func detectTableList(lines []string, hasTableMarker bool) (containsTable, containsList bool) {
	containsTable = hasTableMarker

	tabCount := 0
	spaceRunLines := 0
	nonEmpty := 0
	listLines := 0

	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		nonEmpty++
		if tableLineRe.MatchString(l) {
			containsTable = true
		}
		tabCount += len(tableTabsRe.FindAllString(l, -1))
		if tableSpaceRunRe.MatchString(l) {
			spaceRunLines++
		}
		if listBulletRe.MatchString(l) || listNumberedRe.MatchString(l) ||
			listLetteredRe.MatchString(l) || listRomanRe.MatchString(l) {
			listLines++
		}
	}

	if nonEmpty > 0 && float64(tabCount)/float64(nonEmpty) >= 2 {
		containsTable = true
	}
	if nonEmpty >= 3 && spaceRunLines*2 >= nonEmpty {
		containsTable = true
	}
	if listLines >= 2 {
		containsList = true
	}
	return containsTable, containsList
}
