// Package patch parses and applies unified diffs emitted by a reasoning
// backend. The input is untrusted: every structural defect surfaces as an
// error from Parse or Apply, never a panic. File IO stays with the tool
// executor so the workspace boundary is enforced in one place.
package patch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FilePatch is the validated diff for a single file.
type FilePatch struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

type opKind byte

const (
	opContext opKind = ' '
	opDelete  opKind = '-'
	opAdd     opKind = '+'
)

// op is one line-level edit inside a hunk.
type op struct {
	kind opKind
	text string
}

// Hunk is one block of edits anchored at a line of the original file. Its
// ops are validated during Parse; Apply only re-checks them against the
// actual file content.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	ops      []op
}

// TargetPath returns the workspace-relative path the patch acts on, with
// the conventional a/ and b/ prefixes stripped.
func (p FilePatch) TargetPath() string {
	target := stripDiffPrefix(p.NewPath)
	if p.IsDelete() {
		target = stripDiffPrefix(p.OldPath)
	}
	return target
}

// IsDelete reports whether the patch deletes its target file.
func (p FilePatch) IsDelete() bool {
	return stripDiffPrefix(p.NewPath) == "/dev/null"
}

func stripDiffPrefix(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "a/")
	path = strings.TrimPrefix(path, "b/")
	return path
}

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Parse validates a unified diff into per-file patches. Hunk bodies are
// checked structurally here: every line must carry a known marker and the
// body must account for exactly the line counts the header declares, so a
// malformed diff is rejected before anything is applied.
func Parse(input string) ([]FilePatch, error) {
	lines := strings.Split(input, "\n")
	var patches []FilePatch

	i := 0
	for i < len(lines) {
		if !strings.HasPrefix(lines[i], "--- ") {
			i++
			continue
		}

		oldPath := headerPath(lines[i])
		i++
		if i >= len(lines) || !strings.HasPrefix(lines[i], "+++ ") {
			return nil, fmt.Errorf("expected +++ after --- for %s", oldPath)
		}
		newPath := headerPath(lines[i])
		i++

		filePatch := FilePatch{OldPath: oldPath, NewPath: newPath}
		for i < len(lines) && strings.HasPrefix(lines[i], "@@") {
			hunk, rest, err := parseHunk(lines, i)
			if err != nil {
				return nil, err
			}
			filePatch.Hunks = append(filePatch.Hunks, hunk)
			i = rest
		}
		if len(filePatch.Hunks) == 0 {
			return nil, fmt.Errorf("no hunks for %s", filePatch.TargetPath())
		}
		if filePatch.TargetPath() == "/dev/null" {
			return nil, fmt.Errorf("invalid patch with both paths /dev/null")
		}
		patches = append(patches, filePatch)
	}

	if len(patches) == 0 {
		return nil, fmt.Errorf("no unified diff content found")
	}
	return patches, nil
}

func headerPath(line string) string {
	trimmed := strings.TrimSpace(line[4:])
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func parseHunk(lines []string, start int) (Hunk, int, error) {
	match := hunkHeader.FindStringSubmatch(lines[start])
	if match == nil {
		return Hunk{}, 0, fmt.Errorf("invalid hunk header: %s", lines[start])
	}

	hunk := Hunk{
		OldStart: atoiDefault(match[1], 0),
		OldCount: atoiDefault(match[2], 1),
		NewStart: atoiDefault(match[3], 0),
		NewCount: atoiDefault(match[4], 1),
	}

	oldSeen, newSeen := 0, 0
	i := start + 1
	for i < len(lines) {
		line := lines[i]
		// A blank line or the next header ends the hunk body; blank lines
		// are never edits, empty context arrives as a single space.
		if line == "" || strings.HasPrefix(line, "@@") || strings.HasPrefix(line, "--- ") {
			break
		}
		if strings.HasPrefix(line, `\`) {
			// "\ No newline at end of file"
			i++
			continue
		}

		kind := opKind(line[0])
		switch kind {
		case opContext:
			oldSeen++
			newSeen++
		case opDelete:
			oldSeen++
		case opAdd:
			newSeen++
		default:
			return Hunk{}, 0, fmt.Errorf("hunk line must begin with ' ', '-' or '+': %q", line)
		}
		hunk.ops = append(hunk.ops, op{kind: kind, text: line[1:]})
		i++
	}

	if len(hunk.ops) == 0 {
		return Hunk{}, 0, fmt.Errorf("empty hunk body at line %d", start+1)
	}
	if oldSeen != hunk.OldCount || newSeen != hunk.NewCount {
		return Hunk{}, 0, fmt.Errorf("hunk body has %d/%d lines, header declares %d/%d",
			oldSeen, newSeen, hunk.OldCount, hunk.NewCount)
	}
	return hunk, i, nil
}

func atoiDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

// Apply rewrites original through the hunks. Hunks must be ordered and
// non-overlapping, and context and delete ops must match the original
// exactly; any violation aborts with an error rather than guessing. The
// result carries a trailing newline iff the original did.
func Apply(original string, hunks []Hunk) (string, error) {
	src := splitLines(original)
	var out []string

	cursor := 0
	for _, hunk := range hunks {
		anchor := hunk.OldStart - 1
		if anchor < 0 {
			anchor = 0
		}
		if anchor < cursor {
			return "", fmt.Errorf("hunk at line %d overlaps or precedes an earlier hunk", hunk.OldStart)
		}
		if anchor > len(src) {
			return "", fmt.Errorf("hunk at line %d starts beyond end of file", hunk.OldStart)
		}

		out = append(out, src[cursor:anchor]...)
		cursor = anchor

		for _, o := range hunk.ops {
			switch o.kind {
			case opContext:
				if cursor >= len(src) || src[cursor] != o.text {
					return "", fmt.Errorf("context mismatch at line %d: %q", cursor+1, o.text)
				}
				out = append(out, o.text)
				cursor++
			case opDelete:
				if cursor >= len(src) || src[cursor] != o.text {
					return "", fmt.Errorf("delete mismatch at line %d: %q", cursor+1, o.text)
				}
				cursor++
			case opAdd:
				out = append(out, o.text)
			}
		}
	}
	out = append(out, src[cursor:]...)

	result := strings.Join(out, "\n")
	if strings.HasSuffix(original, "\n") && result != "" {
		result += "\n"
	}
	return result, nil
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}
