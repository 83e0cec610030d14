package correlate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Jojodayolo/testforge/internal/model"
	"github.com/Jojodayolo/testforge/internal/urlcodec"
)

// Section markers of the combined artifact format.
const (
	MarkerPage         = "##### SCRAPED PAGE #####"
	MarkerRequirements = "##### TEST REQUIREMENTS #####"
	MarkerTestURL      = "### TEST URL ###"
	MarkerTemplate     = "### Use the following test as a template"
)

// CombinedSuffix is appended to the normalized requirement name.
const CombinedSuffix = "_combined.txt"

// Combine builds one combined artifact per requirement whose name matches a
// page at or above cutoff. Requirements without a match are returned as
// misses and produce no artifact. Output follows the order of reqs.
func Combine(reqs []model.RequirementArtifact, pages []model.PageSource, example string, cutoff float64) ([]model.CombinedArtifact, []*model.MatchNotFoundError) {
	byKey := make(map[string]model.PageSource, len(pages))
	keys := make([]string, 0, len(pages))
	for _, p := range pages {
		k := Normalize(p.Name)
		if _, dup := byKey[k]; !dup {
			keys = append(keys, k)
		}
		byKey[k] = p
	}

	var (
		out    []model.CombinedArtifact
		misses []*model.MatchNotFoundError
	)
	for _, req := range reqs {
		norm := Normalize(req.Name)
		best, ok := BestMatch(norm, keys, cutoff)
		if !ok {
			misses = append(misses, &model.MatchNotFoundError{
				Requirement: req.Name,
				Normalized:  norm,
				BestScore:   best.Score,
			})
			continue
		}
		page := byKey[best.Name]
		testURL := urlcodec.Decode(req.Name)
		out = append(out, model.CombinedArtifact{
			Name:            norm + CombinedSuffix,
			RequirementName: req.Name,
			PageName:        page.Name,
			TestURL:         testURL,
			Score:           best.Score,
			Content:         Render(page.Content, req.Text, testURL, example),
		})
	}
	return out, misses
}

// Render lays out the four sections in fixed order, each marker followed by a
// blank line and its content.
func Render(page, requirements, testURL, example string) string {
	var b strings.Builder
	section := func(marker, content string) {
		b.WriteString(marker)
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(content))
		b.WriteString("\n\n")
	}
	section(MarkerPage, page)
	section(MarkerRequirements, requirements)
	section(MarkerTestURL, testURL)
	section(MarkerTemplate, example)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// LoadRequirements reads every .txt file in dir as a requirement artifact,
// sorted by name. A missing directory yields no artifacts.
func LoadRequirements(dir string) ([]model.RequirementArtifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read requirements: %w", err)
	}

	var out []model.RequirementArtifact
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read requirement %s: %w", e.Name(), err)
		}
		out = append(out, model.RequirementArtifact{Name: e.Name(), Text: strings.TrimSpace(string(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// WriteArtifacts saves each artifact's content to dir under its name.
func WriteArtifacts(dir string, artifacts []model.CombinedArtifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create combined dir: %w", err)
	}
	for _, a := range artifacts {
		if err := os.WriteFile(filepath.Join(dir, a.Name), []byte(a.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", a.Name, err)
		}
	}
	return nil
}

// LoadArtifacts reads the combined artifacts previously written to dir,
// sorted by name. The test URL is recovered from the TEST URL section.
func LoadArtifacts(dir string) ([]model.CombinedArtifact, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+CombinedSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make([]model.CombinedArtifact, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(p), err)
		}
		content := string(data)
		out = append(out, model.CombinedArtifact{
			Name:    filepath.Base(p),
			TestURL: TestURL(content),
			Content: content,
		})
	}
	return out, nil
}

// TestURL returns the first line of the TEST URL section of a combined
// artifact, or "" when the section is missing.
func TestURL(content string) string {
	_, rest, ok := strings.Cut(content, MarkerTestURL)
	if !ok {
		return ""
	}
	for _, line := range strings.Split(rest, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			if strings.HasPrefix(line, "###") {
				return ""
			}
			return line
		}
	}
	return ""
}
