package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// minBlockLen is the shortest block (after trimming) worth parsing.
const minBlockLen = 10

// block is the text of one candidate question, marker stripped.
type block struct {
	number int
	text   string
}

// segmenter finds question boundaries of one numbering style.
type segmenter struct {
	name string
	re   *regexp.Regexp
	// styled segmenters capture the delimiter in group 2; a page numbers its
	// questions in one style, so boundaries whose delimiter differs from the
	// first boundary on the page are ignored ("1." questions with "1)" options).
	styled bool
}

// segmenters are tried in order. They may detect the same question more than
// once; deduplication collapses those detections later.
var segmenters = []segmenter{
	{
		name:   "numbered",
		re:     regexp.MustCompile(`(?m)^[ \t]*(\d{1,3})([.)])[ \t]+`),
		styled: true,
	},
	{
		name: "q-prefixed",
		re:   regexp.MustCompile(`(?mi)^[ \t]*Q\.?[ \t]*(\d{1,3})[.):]?[ \t]+`),
	},
	{
		name: "question-word",
		re:   regexp.MustCompile(`(?i)\bQuestion[ \t]*(?:No\.?[ \t]*)?(\d{1,3})[.):]?[ \t]*`),
	},
}

// segment splits text into blocks at every boundary of s. Each block runs
// from the end of its marker to the start of the next accepted marker.
func (s segmenter) segment(text string) []block {
	matches := s.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var accepted [][]int
	style := ""
	for _, m := range matches {
		if s.styled {
			delim := text[m[4]:m[5]]
			if style == "" {
				style = delim
			} else if delim != style {
				continue
			}
		}
		accepted = append(accepted, m)
	}

	blocks := make([]block, 0, len(accepted))
	for i, m := range accepted {
		end := len(text)
		if i+1 < len(accepted) {
			end = accepted[i+1][0]
		}
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		blocks = append(blocks, block{number: n, text: text[m[1]:end]})
	}
	return blocks
}

// collapse joins all whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
