package chunk

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

type blockKind string

const (
	blockHeading   blockKind = "heading"
	blockParagraph blockKind = "paragraph"
	blockCode      blockKind = "code"
	blockTable     blockKind = "table"
	blockList      blockKind = "list"
)

// block is one unit of document content carrying the heading path in
// effect at its position.
type block struct {
	kind        blockKind
	level       int // heading level, 0 for non-headings
	text        string
	headingPath []string
}

// containerTags are descended into rather than captured whole.
var containerTags = map[string]bool{
	"div": true, "section": true, "article": true, "main": true,
	"header": true, "footer": true, "nav": true, "aside": true, "details": true,
}

// atomicTags are captured as a single block so code samples, tables, and
// lists are not split across a chunk boundary during grouping. A single
// block larger than absolute_max is still force-split by
// expandOversizedBlocks.
var atomicTags = map[string]bool{
	"pre": true, "table": true, "ul": true, "ol": true, "blockquote": true,
}

// parseBlocks walks the document body in order, classifying each
// block-level element and attaching the heading path in effect at that
// point (built the same way the line-oriented header-stack pattern keeps
// track of nesting, but over the parsed DOM instead of markdown text).
func parseBlocks(htmlContent string) ([]block, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	var blocks []block
	var headingStack [6]string

	var walk func(sel *goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, child *goquery.Selection) {
			node := child.Get(0)
			if node == nil || node.Type != html.ElementNode {
				return
			}
			tag := strings.ToLower(node.Data)

			switch {
			case isHeadingTag(tag):
				text := strings.TrimSpace(child.Text())
				if text == "" {
					return
				}
				level := int(tag[1] - '0')
				headingStack[level-1] = text
				for i := level; i < 6; i++ {
					headingStack[i] = ""
				}
				blocks = append(blocks, block{
					kind:        blockHeading,
					level:       level,
					text:        text,
					headingPath: currentHeadingPath(headingStack),
				})

			case atomicTags[tag]:
				text := strings.TrimSpace(child.Text())
				if text == "" {
					return
				}
				kind := blockList
				switch tag {
				case "pre":
					kind = blockCode
				case "table":
					kind = blockTable
				}
				blocks = append(blocks, block{
					kind:        kind,
					text:        text,
					headingPath: currentHeadingPath(headingStack),
				})

			case containerTags[tag]:
				walk(child)

			case tag == "p" || tag == "figure" || tag == "figcaption":
				text := strings.TrimSpace(child.Text())
				if text == "" {
					return
				}
				blocks = append(blocks, block{
					kind:        blockParagraph,
					text:        text,
					headingPath: currentHeadingPath(headingStack),
				})

			default:
				// Unrecognized block-level elements are treated as
				// containers so their text isn't silently dropped.
				if child.Children().Length() > 0 {
					walk(child)
					return
				}
				text := strings.TrimSpace(child.Text())
				if text != "" {
					blocks = append(blocks, block{
						kind:        blockParagraph,
						text:        text,
						headingPath: currentHeadingPath(headingStack),
					})
				}
			}
		})
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	walk(body)

	return blocks, nil
}

func isHeadingTag(tag string) bool {
	return len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6'
}

func currentHeadingPath(stack [6]string) []string {
	var path []string
	for _, h := range stack {
		if h != "" {
			path = append(path, h)
		}
	}
	return path
}
